// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 store 提供条目元数据与二进制网格的双存储持久化。

# 概述

MetadataStore 基于 GORM 写入 fashion_items 表，每次写入都在事务内以
ON CONFLICT (item_id) DO UPDATE 整行覆盖（created_at 除外）。BlobStore
在 Bucket 抽象之上实现"先写新版本、再删旧版本"的替换语义，生产环境由
GridFSBucket（MongoDB GridFS）实现 Bucket。

# 核心类型

  - MetadataStore：Upsert / Get / Delete / Count / List / Reset / AutoMigrate / Ping。
  - ItemRow：fashion_items 表行，数值特征为可空列。
  - BlobStore：Put / Open / ListItemIDs / Reset / Summary。
  - Bucket：底层 blob 存储接口，GridFSBucket 与 testutil/mocks.MockBucket 实现。

# 主要能力

  - 整行覆盖：第二次写入同一 item_id 后，第一次的任何列值都不会残留。
  - 最新优先：Open 按上传时间返回最新的 .glb，旧版本删除失败不影响读取。
  - 计数：BlobStore 记录 uploaded / deleted / failed。
*/
package store
