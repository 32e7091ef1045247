package main

import (
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"permitpilot/internal/database"
	"permitpilot/internal/domain"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "permitpilot.db"
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Upload{},
		&domain.UploadTag{},
	); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	// Cleanup old data (children first)
	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM upload_tags")
	db.Exec("DELETE FROM uploads")
	db.Exec("DELETE FROM users")

	log.Println("Creating demo user...")
	hash, _ := bcrypt.GenerateFromPassword([]byte("demo1234"), bcrypt.DefaultCost)
	user := domain.User{
		Email:        "demo@permitpilot.dev",
		PasswordHash: string(hash),
		Name:         "Demo User",
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatal("create user failed:", err)
	}

	log.Println("Creating demo uploads...")
	permitText := "Permit application for a two-story residential extension at 14 Oak Street. " +
		"Scope: foundation work, framing, electrical rough-in. Estimated completion Q3."

	seedUploads := []struct {
		name      string
		mimeType  string
		size      int64
		tags      []string
		content   *string
		createdAt time.Time
	}{
		{"site-plan.pdf", "application/pdf", 482133, []string{"plans", "approved"}, nil, daysAgo(30)},
		{"permit-application.txt", "text/plain", int64(len(permitText)), []string{"permits"}, &permitText, daysAgo(14)},
		{"inspection-photos.zip", "application/zip", 10485760, []string{"photos", "inspection"}, nil, daysAgo(7)},
		{"zoning-letter.pdf", "application/pdf", 94231, []string{"permits", "approved"}, nil, daysAgo(2)},
	}

	for _, s := range seedUploads {
		u := domain.Upload{
			UserID:    user.ID,
			Name:      s.name,
			MimeType:  s.mimeType,
			Size:      s.size,
			Content:   s.content,
			CreatedAt: s.createdAt,
		}
		if err := db.Create(&u).Error; err != nil {
			log.Fatal("create upload failed:", err)
		}
		for _, tag := range s.tags {
			if err := db.Create(&domain.UploadTag{UploadID: u.ID, Tag: tag}).Error; err != nil {
				log.Fatal("create tag failed:", err)
			}
		}
	}

	log.Println("Seed complete: demo@permitpilot.dev / demo1234")
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n)
}
