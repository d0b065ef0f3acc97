package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Load 把配置文件反序列化到 out（必须是指针）。
//
// 约定：
// 1) cfgName 为绝对路径或当前目录下存在的相对路径时直接使用；
// 2) 否则从当前目录开始逐级向上查找 cfgName（例如 `configs/conf.yml`），
//    方便在 cmd/xxx、包测试目录里直接运行。
func Load(cfgName string, out any) error {
	path, err := Resolve(cfgName)
	if err != nil {
		return err
	}
	return load(path, out)
}

// MustLoad 是 Load 的 panic 版本，给 main 启动阶段用。
func MustLoad(cfgName string, out any) {
	if err := Load(cfgName, out); err != nil {
		panic(err)
	}
}

// Resolve 返回配置文件的实际路径。
func Resolve(cfgName string) (string, error) {
	if cfgName == "" {
		return "", fmt.Errorf("config name is empty")
	}
	if filepath.IsAbs(cfgName) {
		if !fileExist(cfgName) {
			return "", fmt.Errorf("config file not exist, configPath=%v", cfgName)
		}
		return cfgName, nil
	}
	curDir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findConfigUpward(curDir, cfgName)
}

func findConfigUpward(startDir, rel string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, rel)
		if fileExist(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("config file not exist, searched %s from: %s", rel, startDir)
		}
		dir = parent
	}
}
