/*
包 gemini 实现与 Gemini 兼容图像生成接口的单次请求传输层。

职责边界：

  - 构造 generateContent 请求体（提示词后缀、参考图内联、种子、
    分辨率与比例归一化）与容错的 URL 拼接。
  - 发起一次带 (连接超时, 剩余读取超时) 的 HTTP 调用，并把失败
    按阶段分类为 types.Error（connect 可重试 / read 终态 / http 按
    状态码划分）。
  - 从 2xx 响应中提取图片（inlineData 与 Markdown base64 两种形态）
    与文本。
  - 对用户可见的错误信息做脱敏：隐去上游域名与 URL，把已知的
    余额不足信息映射为固定文案。

重试、预算与取消由上层 executor 负责；本包每次调用只做一次尝试。
每个 Client 持有独立的连接池，调度器为每个 worker 建一个实例，
避免跨 worker 的队头阻塞。
*/
package gemini
