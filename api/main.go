package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const version = "1.0.0"

type config struct {
	port int
	env  string
	db   struct {
		dsn                string
		maxOpenConnections int
		maxIdleConnections int
		maxIdleTime        time.Duration
	}
	smtp struct {
		host     string
		port     int
		username string
		password string
		sender   string
	}
	jwt struct {
		secret string
		ttl    time.Duration
	}
	limiter struct {
		enabled             bool
		maxRequestPerSecond float64
		burst               int
	}
	cors struct {
		trustedOrigins []string
	}
	admin struct {
		email    string
		password string
	}
}

type application struct {
	config config
	store  storage
	tasks  *taskStore
	tokens *tokenService
	mailer *mailer
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	var cfg config
	flag.IntVar(&cfg.port, "port", 3000, "Server Port")
	flag.StringVar(&cfg.env, "env", "development", "Environment [development|production]")

	flag.StringVar(&cfg.db.dsn, "db-dsn", os.Getenv("DB_DSN"), "PostgreSQL DSN (empty runs the in-memory store)")
	flag.IntVar(&cfg.db.maxOpenConnections, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.IntVar(&cfg.db.maxIdleConnections, "db-max-idle-conns", 25, "PostgreSQL max idle connections")
	var maxIdleTime string
	flag.StringVar(&maxIdleTime, "db-max-idle-time", "15m", "PostgreSQL max connection idle time")

	flag.StringVar(&cfg.smtp.host, "smtp-host", os.Getenv("SMTP_HOST"), "SMTP host")
	smtpPort, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	flag.IntVar(&cfg.smtp.port, "smtp-port", smtpPort, "SMTP port")
	flag.StringVar(&cfg.smtp.username, "smtp-username", os.Getenv("SMTP_USERNAME"), "SMTP username")
	flag.StringVar(&cfg.smtp.password, "smtp-password", os.Getenv("SMTP_PASSWORD"), "SMTP password")
	flag.StringVar(&cfg.smtp.sender, "smtp-sender", os.Getenv("SMTP_SENDER"), "SMTP sender")

	flag.StringVar(&cfg.jwt.secret, "jwt-secret", os.Getenv("JWT_SECRET"), "JWT secret")
	var jwtTTL string
	flag.StringVar(&jwtTTL, "jwt-ttl", "1h", "JWT lifetime (role claims go stale until expiry, keep this short)")

	flag.BoolVar(&cfg.limiter.enabled, "limiter-enabled", true, "Enable rate limiter")
	flag.Float64Var(&cfg.limiter.maxRequestPerSecond, "limiter-rps", 2, "Rate limiter max requests per second per IP")
	flag.IntVar(&cfg.limiter.burst, "limiter-burst", 4, "Rate limiter burst per IP")

	flag.Func("cors-trusted-origins", "Trusted CORS origins (space separated)", func(s string) error {
		cfg.cors.trustedOrigins = append(cfg.cors.trustedOrigins, s)
		return nil
	})

	flag.StringVar(&cfg.admin.email, "admin-email", os.Getenv("ADMIN_EMAIL"), "Bootstrap administrator email")
	flag.StringVar(&cfg.admin.password, "admin-password", os.Getenv("ADMIN_PASSWORD"), "Bootstrap administrator password")
	flag.Parse()

	d, err := time.ParseDuration(maxIdleTime)
	if err != nil {
		cfg.db.maxIdleTime = 15 * time.Minute
		log.Printf(`invalid value %s for flag "db-max-idle-time" defaulting to %s`, maxIdleTime, cfg.db.maxIdleTime)
	} else {
		cfg.db.maxIdleTime = d
	}

	cfg.jwt.ttl, err = time.ParseDuration(jwtTTL)
	if err != nil {
		cfg.jwt.ttl = time.Hour
		log.Printf(`invalid value %s for flag "jwt-ttl" defaulting to %s`, jwtTTL, cfg.jwt.ttl)
	}

	if cfg.jwt.secret == "" {
		secret := make([]byte, 32)
		_, err = rand.Read(secret[:])
		if err != nil {
			log.Fatal(err)
		}
		cfg.jwt.secret = string(secret)
		log.Println("no jwt secret configured, generated an ephemeral one; tokens will not survive a restart")
	}

	var store storage
	if cfg.db.dsn != "" {
		db, err := openDB(cfg)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("established a connection with database")
		store, err = newSQLStore(db)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		log.Println("no database DSN configured, using the in-memory store; data will not survive a restart")
		store = newMemStore()
	}

	app := &application{
		config: cfg,
		store:  store,
		tasks:  newTaskStore(store),
		tokens: newTokenService(cfg.jwt.secret, cfg.jwt.ttl),
	}
	if cfg.smtp.host != "" {
		app.mailer = newMailer(cfg.smtp.host, cfg.smtp.port, cfg.smtp.username, cfg.smtp.password, cfg.smtp.sender)
	}

	if cfg.admin.email != "" {
		err = seedAdmin(store, cfg.admin.email, cfg.admin.password)
		if err != nil {
			log.Fatal(err)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.port),
		Handler:      composeRoutes(app),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Printf("Starting %s server on port %d\n", cfg.env, cfg.port)
	err = srv.ListenAndServe()
	log.Fatal(err)
}

// seedAdmin makes sure the bootstrap administrator exists. Roles are
// otherwise only granted by an existing administrator, so a fresh
// deployment needs one account to start from.
func seedAdmin(store storage, email, password string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	existing, err := store.getUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	v := newValidator()
	v.checkEmail(email)
	v.checkPassword(password)
	if v.hasErrors() {
		return fmt.Errorf("admin seed: %w", v.toError())
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	u := &user{
		Email:        email,
		PasswordHash: hash,
		Role:         roleAdministrator,
	}
	err = store.insertUser(ctx, u)
	if err != nil {
		return err
	}
	log.Printf("seeded administrator account %s", email)
	return nil
}
