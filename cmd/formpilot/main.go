package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/formpilot/deviceauth/internal/client"
	"github.com/formpilot/deviceauth/internal/models"
	"github.com/formpilot/deviceauth/internal/session"
	"github.com/formpilot/deviceauth/internal/version"
)

func usage() {
	fmt.Println("Usage: formpilot <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  login   Authorize this device via the browser")
	fmt.Println("  status  Show the current session")
	fmt.Println("  logout  Delete the stored session")
	fmt.Println("  version Print the build version")
}

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	path, err := session.DefaultPath()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	sess, err := session.NewManager(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "login":
		runLogin(sess)
	case "status":
		runStatus(sess)
	case "logout":
		runLogout(sess)
	case "version":
		version.PrintVersion()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func runLogin(sess *session.Manager) {
	serverURL := getEnv("FORMPILOT_SERVER_URL", sess.ServerURL())
	clientID := getEnv("FORMPILOT_CLIENT_ID", "formpilot-cli")

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	c, err := client.New(serverURL, clientID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	hostname, _ := os.Hostname()
	auth, err := c.Initiate(ctx, hostname, models.DeviceInfo{
		Platform: runtime.GOOS,
		Version:  version.Get(),
		Hostname: hostname,
	})
	if err != nil {
		fmt.Printf("Could not reach %s: %v\n", serverURL, err)
		os.Exit(1)
	}

	fmt.Println("----------------------------------------")
	fmt.Printf("Open this link to authorize:\n%s\n", auth.VerificationURIComplete)
	fmt.Printf("\nOr visit %s and enter code: %s\n",
		auth.VerificationURI, auth.UserCode)
	fmt.Println("----------------------------------------")

	if sess.AutoOpenBrowser() {
		if err := client.OpenBrowser(auth.VerificationURIComplete); err != nil {
			fmt.Println("Could not open the browser, use the link above.")
		}
	}

	fmt.Println("\nWaiting for authorization...")
	token, err := c.PollForToken(ctx, auth.DeviceCode, auth.Interval, auth.ExpiresIn)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrAccessDenied):
			fmt.Println("Authorization was denied.")
		case errors.Is(err, client.ErrExpiredToken):
			fmt.Println("The code expired before it was approved. Run login again.")
		case errors.Is(err, client.ErrPollTimeout):
			fmt.Println("Gave up waiting for authorization. Run login again.")
		case errors.Is(err, context.Canceled):
			fmt.Println("Login cancelled.")
		case errors.Is(err, client.ErrNetwork):
			fmt.Printf("Could not reach %s: %v\n", serverURL, err)
		default:
			fmt.Printf("Login failed: %v\n", err)
		}
		os.Exit(1)
	}

	if err := sess.Store(token); err != nil {
		fmt.Printf("Authorized, but saving the session failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nLogged in as %s.\n", token.User.Email)
}

func runStatus(sess *session.Manager) {
	if !sess.IsAuthenticated() {
		fmt.Println("Not logged in. Run: formpilot login")
		return
	}

	// A hand-edited or partially written config can hold a token without
	// the user snapshot.
	if user := sess.User(); user != nil {
		fmt.Printf("Logged in as: %s\n", user.Email)
		fmt.Printf("Subscription: %s (%s)\n", user.SubscriptionTier, user.SubscriptionStatus)
		fmt.Printf("Credits: %d (+%d bonus)\n",
			user.Balances.Credits, user.Balances.BonusCredits)
	} else {
		fmt.Println("Logged in (no user details in session).")
	}
	fmt.Printf("Token expires: %s\n",
		sess.TokenExpiresAt().Format(time.RFC1123))
}

func runLogout(sess *session.Manager) {
	if err := sess.Logout(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Logged out.")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
