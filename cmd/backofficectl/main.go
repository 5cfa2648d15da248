// Command backofficectl performs administrative actions against the
// credential store directly, bypassing the HTTP surface. Its main use is
// bootstrapping the first admin identity on a fresh deployment.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/term"

	"github.com/vektorburo/backoffice/internal/common"
	"github.com/vektorburo/backoffice/internal/server/config"
	"github.com/vektorburo/backoffice/internal/server/models"
	"github.com/vektorburo/backoffice/internal/server/repositories/repomanager"
	"github.com/vektorburo/backoffice/internal/server/services"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {

	var email, name, role string
	flag.StringVar(&email, "email", "", "email of the identity to create")
	flag.StringVar(&name, "name", "", "display name")
	flag.StringVar(&role, "role", models.RoleAdmin, "role (admin or user)")
	flag.Parse()

	if email == "" {
		fmt.Fprintln(os.Stderr, "usage: backofficectl -email <email> [-name <name>] [-role admin|user]")
		os.Exit(2)
	}
	if !models.ValidRole(role) {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", role)
		os.Exit(2)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	rm := &repomanager.PostgresRepositoryManager{}
	ctx := context.Background()
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	password, err := promptPassword()
	if err != nil {
		log.Fatalf("password prompt error: %v", err)
	}

	us := services.NewUserService(db, rm)
	user, err := us.CreateUser(ctx, strings.ToLower(email), name, role, password, "")
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			log.Fatalf("identity %s already exists", email)
		}
		log.Fatalf("create error: %v", err)
	}

	fmt.Printf("created %s identity %s (%s)\n", user.Role, user.Email, user.ID)
}

func promptPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Print("Password: ")
		b, err := readPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// piped input (scripts, CI)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
