// Package config 提供压测运行配置的加载与校验。
// 支持从 YAML 文件、环境变量和命令行参数加载配置，
// 优先级顺序为：默认值 < YAML 文件 < 环境变量 < 命令行参数。
// 加载得到的 RunConfig 在运行期间只读，以指针传递给各组件。
package config
