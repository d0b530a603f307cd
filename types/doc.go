/*
包 types 定义批量生成管线的核心数据模型与统一错误分类。

# 核心类型

  - Job / JobResult：批次中单个生成任务及其唯一终态结果。
  - TimeoutBudget：连接超时 + 跨重试共享的全局读取预算。
  - Outcome：执行器的带标签结果（success / failed / cancelled），
    预期失败以值而非 panic 传播。
  - Error / ErrorCode / Phase：结构化错误，携带阶段（connect/read/http）、
    HTTP 状态与可重试标记。

本包不依赖任何第三方库，供全部上层包引用。
*/
package types
