// Command riskengine 风险引擎运维工具：检查立方体文件、导出立方体、校验配置。
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
