package main

import (
	"io"
	"log"
	"os"

	"github.com/mpetrov/gatehouse/internal/config"
	"github.com/mpetrov/gatehouse/internal/logging"
	"github.com/mpetrov/gatehouse/internal/repository/postgres"
	"github.com/mpetrov/gatehouse/internal/service"
	transporthttp "github.com/mpetrov/gatehouse/internal/transport/http"
	"github.com/mpetrov/gatehouse/internal/transport/mail"
	"github.com/mpetrov/gatehouse/internal/util"
)

func main() {
	cfg := config.Load()

	if cfg.LogstashTCPAddr != "" {
		writer, err := logging.NewLogstashWriter(cfg.LogstashTCPAddr)
		if err != nil {
			log.Printf("logstash writer disabled: %v", err)
		} else {
			defer writer.Close()
			log.SetOutput(io.MultiWriter(os.Stdout, writer))
		}
	}

	db, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	userRepo := postgres.NewUserRepo(db)
	resetRepo := postgres.NewResetTokenRepo(db)

	hasher := util.NewPasswordHasher(cfg.BcryptCost)
	jwtManager := util.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	resetManager := service.NewResetTokenManager(resetRepo, userRepo, hasher, cfg.PasswordResetTTL)

	var mailer service.PasswordResetSender
	if cfg.SMTPHost != "" {
		mailer = mail.NewPasswordResetMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		log.Println("SMTP not configured, reset links will not be delivered")
	}

	authService := service.NewAuthService(userRepo, resetManager, hasher, jwtManager, mailer, cfg.GoogleAudience, cfg.AppBaseURL)

	e := transporthttp.NewRouter(cfg.AllowOrigins)
	transporthttp.RegisterAuth(e, authService)
	transporthttp.RegisterSwagger(e)

	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
