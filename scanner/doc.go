// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 scanner 遍历数据集根目录并识别条目文件夹。

一个目录直接包含至少一个 .obj 文件时即为条目文件夹，类别取父目录名。
文件标志按文件名推导：

  - has_obj：.obj 且不以 border 开头（同时作为可转换的源文件）
  - has_mtl：.mtl
  - has_pcd：.pcd 且不以 kp_ 开头
  - has_keypoints：kp_*.pcd
  - has_border：border*.obj
  - textures：.png / .jpg / .jpeg

每个目录的条目按名称排序后深度优先遍历。列目录失败以 Folder.Err 形式
交给调用方，遍历继续。配额判断由 pipeline 负责。
*/
package scanner
