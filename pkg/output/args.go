package output

import (
	"fmt"
	"strings"
)

// ParseArg 解析 --out 参数，格式为 type 或 type=argument
func ParseArg(arg string) (outputType, configArg string, err error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", "", fmt.Errorf("empty output argument")
	}
	outputType, configArg, _ = strings.Cut(arg, "=")
	if outputType == "" {
		return "", "", fmt.Errorf("output argument %q has no type", arg)
	}
	return outputType, configArg, nil
}

// CreateFromArgs 根据 --out 参数列表创建输出实例。
// 任一失败时返回错误，已创建的输出不会被启动，无需停止。
func CreateFromArgs(args []string, params Params) ([]Output, error) {
	outputs := make([]Output, 0, len(args))

	for _, arg := range args {
		outputType, configArg, err := ParseArg(arg)
		if err != nil {
			return nil, err
		}

		p := params
		p.ConfigArgument = configArg

		out, err := Create(outputType, p)
		if err != nil {
			return nil, fmt.Errorf("create output %s: %w", outputType, err)
		}
		outputs = append(outputs, out)
	}

	return outputs, nil
}
