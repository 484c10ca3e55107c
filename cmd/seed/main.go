package main

import (
	"github.com/veritag-api/internal/config"
	"github.com/veritag-api/internal/logger"
	"github.com/veritag-api/internal/models"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 默认运营账号
	if err := models.InitDefaultUser("", ""); err != nil {
		stdLog.Fatalf("Failed to init default user: %v", err)
	}

	// 示例商品
	products := []models.Product{
		{
			Name:        "有机绿茶 250g",
			Category:    "beverage",
			Description: "示例商品：用于演示批次与扫码验证流程。",
		},
		{
			Name:        "冷萃咖啡豆 500g",
			Category:    "beverage",
			Description: "示例商品：用于演示异步批量生成流程。",
		},
	}
	for i := range products {
		var count int64
		models.DB.Model(&models.Product{}).Where("name = ?", products[i].Name).Count(&count)
		if count > 0 {
			continue
		}
		if err := models.DB.Create(&products[i]).Error; err != nil {
			stdLog.Printf("Failed to seed product %q: %v", products[i].Name, err)
		}
	}

	stdLog.Println("Seed completed")
}
