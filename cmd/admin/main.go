package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"resumecanvas/internal/auth"
	"resumecanvas/internal/config"
	"resumecanvas/internal/database"
)

const usage = `用法:
  admin create-user --email <addr> [--name <name>] [--tier free|pro]
  admin set-tier    --email <addr> --tier free|pro

数据库参数可通过 --db-host 等参数或 DATABASE_HOST / POSTGRES_* 环境变量提供。`

type dbFlags struct {
	host, name, user, password, sslMode *string
	port                                *int
}

func registerDBFlags(fs *flag.FlagSet) dbFlags {
	return dbFlags{
		host:     fs.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）"),
		port:     fs.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）"),
		name:     fs.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）"),
		user:     fs.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）"),
		password: fs.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）"),
		sslMode:  fs.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）"),
	}
}

func (f dbFlags) open() *gorm.DB {
	dbCfg, err := loadDatabaseConfig(*f.host, *f.port, *f.name, *f.user, *f.password, *f.sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	return db
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "create-user":
		createUser(os.Args[2:])
	case "set-tier":
		setTier(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

// createUser 创建账号并打印一次性初始密码。
func createUser(args []string) {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	email := fs.String("email", "", "登录邮箱（必填）")
	name := fs.String("name", "", "显示名称（可选）")
	tier := fs.String("tier", database.TierFree, "订阅档位：free 或 pro")
	dbf := registerDBFlags(fs)
	_ = fs.Parse(args)

	t, err := parseTier(*tier)
	if err != nil {
		log.Fatal(err)
	}
	user, password, err := createAccount(dbf.open(), *email, *name, t)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("已创建账号：\n")
	fmt.Printf("邮箱: %s\n", user.Email)
	fmt.Printf("档位: %s\n", user.SubscriptionTier)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：该密码仅显示一次，登录后请在账号设置中修改。\n")
}

// createAccount 以随机口令创建账号，返回明文口令供运维转交。
func createAccount(db *gorm.DB, email, name, tier string) (database.User, string, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return database.User{}, "", errors.New("missing required flag: --email")
	}

	var count int64
	if err := db.Model(&database.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return database.User{}, "", fmt.Errorf("query user: %w", err)
	}
	if count > 0 {
		return database.User{}, "", fmt.Errorf("user %q already exists", email)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		return database.User{}, "", fmt.Errorf("generate password: %w", err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return database.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user := database.User{
		Email:              email,
		Name:               strings.TrimSpace(name),
		PasswordHash:       hashed,
		SubscriptionTier:   tier,
		SubscriptionStatus: tierStatus(tier),
	}
	if err := db.Create(&user).Error; err != nil {
		return database.User{}, "", fmt.Errorf("create user: %w", err)
	}
	return user, password, nil
}

// setTier 调整账号的订阅档位。支付流程不在本服务内，档位由运维手动维护。
func setTier(args []string) {
	fs := flag.NewFlagSet("set-tier", flag.ExitOnError)
	email := fs.String("email", "", "登录邮箱（必填）")
	tier := fs.String("tier", "", "订阅档位：free 或 pro（必填）")
	dbf := registerDBFlags(fs)
	_ = fs.Parse(args)

	t, err := parseTier(*tier)
	if err != nil {
		log.Fatal(err)
	}
	if err := updateTier(dbf.open(), *email, t); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("账号 %s 的档位已更新为 %s\n", auth.NormalizeEmail(*email), t)
}

func updateTier(db *gorm.DB, email, tier string) error {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return errors.New("missing required flag: --email")
	}
	res := db.Model(&database.User{}).
		Where("email = ?", email).
		Updates(map[string]any{
			"subscription_tier":   tier,
			"subscription_status": tierStatus(tier),
		})
	if res.Error != nil {
		return fmt.Errorf("update tier: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %q not found", email)
	}
	return nil
}

func parseTier(tier string) (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(tier)); t {
	case database.TierFree, database.TierPro:
		return t, nil
	default:
		return "", fmt.Errorf("invalid tier %q, want free or pro", tier)
	}
}

func tierStatus(tier string) string {
	if tier == database.TierPro {
		return "active"
	}
	return "inactive"
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("DB_NAME")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("DB_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("DB_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
