package config

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	reloadMu    sync.Mutex
	reloadHooks []func()
)

// OnReload 注册配置热更新回调（在 out 被重新反序列化之后调用）。
func OnReload(fn func()) {
	if fn == nil {
		return
	}
	reloadMu.Lock()
	reloadHooks = append(reloadHooks, fn)
	reloadMu.Unlock()
}

func load(configPath string, out any) error {
	if !fileExist(configPath) {
		return fmt.Errorf("config file not exist, configPath=%v", configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("viper unmarshal config: %w", err)
	}

	// 热更新只刷新可变的调参项；解析失败保留旧值，不让运行中的引擎崩掉。
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Println("配置文件变更", e.Name)
		reloadMu.Lock()
		defer reloadMu.Unlock()
		if err := v.Unmarshal(out); err != nil {
			log.Printf("viper unmarshal change config data: %v", err)
			return
		}
		for _, fn := range reloadHooks {
			fn()
		}
	})
	v.WatchConfig()
	return nil
}

func fileExist(fileName string) bool {
	_, err := os.Stat(fileName)
	return err == nil
}
