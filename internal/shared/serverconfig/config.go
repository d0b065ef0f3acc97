package serverconfig

import (
	"os"

	"TribalRealms/internal/shared/config"
)

const defaultConfigRelPath = "configs/conf.yml"

var Conf Config

// Load 加载 configs/conf.yml；path 非空时优先使用（命令行 --config）。
func Load(path ...string) error {
	target := defaultConfigRelPath
	if len(path) > 0 && path[0] != "" {
		target = path[0]
	}
	if err := config.Load(target, &Conf); err != nil {
		return err
	}
	Conf.ApplyDefaults()
	// 环境变量优先；若未设置则回填配置中的 jwt_secret，兼容本地开发场景。
	if os.Getenv("JWT_SECRET") == "" && Conf.JWTSecret != "" {
		_ = os.Setenv("JWT_SECRET", Conf.JWTSecret)
	}
	return nil
}
