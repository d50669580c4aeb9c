// talkspot-auth manages SOTA SSO credentials for the talkspotd daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spotterlabs/talkspot/internal/clients/sota"
	"github.com/spotterlabs/talkspot/internal/config"
	"github.com/spotterlabs/talkspot/internal/dispatch"
)

var version = "0.1.0-dev"

func main() {
	var configPath string
	loginCmd := flag.NewFlagSet("login", flag.ExitOnError)
	loginCmd.StringVar(&configPath, "config", "talkspot.yaml", "Path to configuration file")
	logoutCmd := flag.NewFlagSet("logout", flag.ExitOnError)
	logoutCmd.StringVar(&configPath, "config", "talkspot.yaml", "Path to configuration file")
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	statusCmd.StringVar(&configPath, "config", "talkspot.yaml", "Path to configuration file")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'login', 'logout', 'status', or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "login":
		loginCmd.Parse(os.Args[2:])
		if err := runLogin(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "logout":
		logoutCmd.Parse(os.Args[2:])
		if err := runLogout(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("logout complete")
	case "status":
		statusCmd.Parse(os.Args[2:])
		if err := runStatus(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func loadAuth(configPath string) (*sota.Auth, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return sota.NewAuth(cfg.SOTA)
}

func runLogin(configPath string) error {
	auth, err := loadAuth(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return auth.DeviceLogin(ctx, os.Stdout)
}

func runLogout(configPath string) error {
	auth, err := loadAuth(configPath)
	if err != nil {
		return err
	}
	return auth.Logout()
}

func runStatus(configPath string) error {
	auth, err := loadAuth(configPath)
	if err != nil {
		return err
	}
	if !auth.Authenticated() {
		fmt.Println("not authenticated - run 'login' first")
		return nil
	}
	if err := auth.EnsureValid(context.Background()); err != nil {
		if errors.Is(err, dispatch.ErrAuthExpired) || errors.Is(err, dispatch.ErrAuthRequired) {
			fmt.Println("tokens expired - run 'login' to re-authenticate")
			return nil
		}
		return err
	}
	fmt.Println("authenticated (tokens valid)")
	return nil
}
