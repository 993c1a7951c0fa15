// Package all 导入所有输出插件
// 在 main 包中导入此包以注册所有输出类型
package all

import (
	_ "yqhp/loadgen/pkg/output/influxdb"
	_ "yqhp/loadgen/pkg/output/json"
)
