// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 mesh 提供服装扫描网格的格式转换与几何特征分析。

# 概述

Converter 读取 Wavefront OBJ（含同名 MTL 与漫反射贴图），输出单文件
二进制 glTF（GLB），贴图嵌入缓冲区，缺失或不可用时统一回退为中性灰材质。
Analyzer 读取 GLB，按位置焊接所有 primitive 后计算拓扑与度量统计。

# 核心类型

  - Converter：OBJ → GLB 转换，返回 Conversion（输出路径、告警、子几何体数）。
  - Analyzer：GLB 特征分析，返回 types.Analysis。
  - Policy：分析策略，ungated 总是计算，gated 拒绝没有颜色信息的网格。

# 主要能力

  - 贴图检查：只读检查 MTL 中 map_Kd 引用的文件是否存在，缺失只告警。
  - 拓扑统计：连通分量、边界环、水密性、亏格（χ = 2C - 2g - B）。
  - 包围盒：主轴（PCA）包围盒体积，不超过轴对齐包围盒。
  - 容错：解析失败与编码器 panic 均转换为 error，加载失败的分析降级为
    Success=false 而不是报错。
*/
package mesh
