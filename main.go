package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Marshallmay28/zetumall-backend/internal/db"
	"github.com/Marshallmay28/zetumall-backend/internal/gateway"
	"github.com/Marshallmay28/zetumall-backend/internal/handler"
	"github.com/Marshallmay28/zetumall-backend/internal/models"
	"github.com/Marshallmay28/zetumall-backend/internal/services"
	"github.com/Marshallmay28/zetumall-backend/internal/sweeper"
)

type Config struct {
	MySQL struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"dbname"`
	} `mapstructure:"mysql"`
	Mpesa struct {
		ConsumerKey    string `mapstructure:"consumer_key"`
		ConsumerSecret string `mapstructure:"consumer_secret"`
		Passkey        string `mapstructure:"passkey"`
		Shortcode      string `mapstructure:"shortcode"`
		CallbackURL    string `mapstructure:"callback_url"`
		AuthURL        string `mapstructure:"auth_url"`
		STKPushURL     string `mapstructure:"stk_push_url"`
	} `mapstructure:"mpesa"`
	App struct {
		Port                 int `mapstructure:"port"`
		SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	} `mapstructure:"app"`
}

func main() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("read config: ", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal("parse config: ", err)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
	dbConn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("connect mysql: ", err)
	}

	if err := dbConn.AutoMigrate(
		&models.Store{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.EscrowTransaction{},
		&models.PaymentTransaction{},
		&models.AuditEntry{},
	); err != nil {
		log.Fatal("migrate schema: ", err)
	}

	store := db.NewGormStore(dbConn)
	escrowSvc := services.NewEscrowService(store)
	orderSvc := services.NewOrderService(store, escrowSvc)
	mpesa := gateway.NewClient(gateway.Config{
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		Passkey:        cfg.Mpesa.Passkey,
		Shortcode:      cfg.Mpesa.Shortcode,
		CallbackURL:    cfg.Mpesa.CallbackURL,
		AuthURL:        cfg.Mpesa.AuthURL,
		STKPushURL:     cfg.Mpesa.STKPushURL,
	})
	paymentSvc := services.NewPaymentService(store, mpesa)

	sqlDB, err := dbConn.DB()
	if err != nil {
		log.Fatal("unwrap sql.DB: ", err)
	}
	pingDB := func(ctx context.Context) error { return sqlDB.PingContext(ctx) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweepEvery := time.Duration(cfg.App.SweepIntervalMinutes) * time.Minute
	if sweepEvery <= 0 {
		sweepEvery = 15 * time.Minute
	}
	go sweeper.Start(ctx, escrowSvc, sweepEvery)

	r := gin.Default()
	handler.RegisterRoutes(r, handler.New(orderSvc, escrowSvc, paymentSvc, pingDB))

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	log.Printf("listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatal("serve: ", err)
	}
}
