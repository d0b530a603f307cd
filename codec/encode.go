package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/BaSui01/bananaflow/types"
)

// contentKey 计算原始字节的内容哈希，作为缓存键。
// 相同输入必然得到相同键，与批次、进程无关。
func contentKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// encodeToBase64PNG 把任意常见格式的图像字节归一化为 base64 PNG。
// 这是缓存保护的高开销路径；缓存只是优化，此函数必须独立正确。
func encodeToBase64PNG(raw []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", types.NewError(types.ErrDecode, "输入图像解码失败").WithCause(err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", types.NewError(types.ErrDecode, "输入图像编码失败").WithCause(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
