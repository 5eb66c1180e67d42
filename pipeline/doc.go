// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 pipeline 编排一次完整的摄取批处理。

# 概述

Orchestrator 驱动 scanner → mesh.Converter → mesh.Analyzer →
（MetadataStore + BlobStore），单线程同步执行。每个源文件产生一条
Entry，结果分类为 OutcomeKind，状态字符串为 OK、FAIL: ... 或 SKIPPED: ...。

# 配额

QuotaCounter 记录每个类别已成功入库的条目数。处理文件夹前检查一次，
文件夹内每个源文件前再检查一次，因此任意遍历顺序下都不会超过上限。
被纹理门控跳过的条目会删除转换产物，不占名额。

# 入库顺序

先 upsert 元数据，再写 blob。blob 写入失败时删除刚写入的元数据行。

# 报告

Report 可通过 RenderTable 输出为终端表格，也可通过 WriteParquet 导出。
*/
package pipeline
