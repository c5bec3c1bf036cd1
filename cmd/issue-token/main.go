package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/service"
)

// issue-token signs a student token with JWT_SECRET for local testing against the
// session API. Production tokens come from the identity service.
func main() {
	var studentID int
	var ttl time.Duration
	flag.IntVar(&studentID, "student", 0, "Student ID")
	flag.DurationVar(&ttl, "ttl", 4*time.Hour, "Token lifetime")
	flag.Parse()

	if studentID <= 0 {
		fmt.Println("Error: -student is required")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Load()
	token, err := service.NewAuthService(cfg.JWTSecret).IssueStudentToken(studentID, ttl)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
