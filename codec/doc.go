/*
包 codec 负责批量生成管线两端的图像编解码。

  - EncodeCache：内容寻址的有界 LRU 缓存，避免同一批次内共享参考图
    被重复编码。可选 Redis 二级缓存（跨进程共享），任何缓存层故障
    都只降级为现场编码，绝不影响正确性。
  - DecodePool：并发解码远端返回的 base64 图片载荷，单张失败以固定
    占位图顶替，保持批次形状与顺序不变。

两者均不持有跨任务状态（缓存表本身除外）。
*/
package codec
