package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/mtkorhonen/helen2mqtt/internal/helen"
)

const omaHelenURL = "https://web.omahelen.fi/"

var loginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Capture a Helen session through the browser",
	Long: `Opens a browser window for you to log in to Oma Helen manually. The
access token is captured from the API requests the web app makes and
saved to the config together with the session cookies, so polling works
even when password login is blocked by a captcha.

With a single configured account the argument can be left out.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured: run 'helen2mqtt setup' first")
	}

	acct := &cfg.Accounts[0]
	if len(args) == 1 {
		acct = cfg.FindAccount(args[0])
		if acct == nil {
			return fmt.Errorf("no account matching %q in config", args[0])
		}
	} else if len(cfg.Accounts) > 1 {
		return fmt.Errorf("multiple accounts configured, pass an account id or username")
	}

	fmt.Printf("Opening browser for %s...\n", acct.Username)
	fmt.Println("Please log in to Oma Helen in the browser window.")
	fmt.Println("The access token is captured as soon as the app loads your data.")
	fmt.Println("Then press Enter here to save...")

	// Create a visible browser context
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// Set a longer timeout for user to login
	ctx, cancel = context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	// Watch the API requests the web app makes for the bearer token
	var capturedToken string
	var tokenCaptured bool
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			if tokenCaptured || !strings.Contains(ev.Request.URL, "api.omahelen.fi") {
				return
			}
			if auth, ok := ev.Request.Headers["Authorization"]; ok {
				if authStr, ok := auth.(string); ok && strings.HasPrefix(authStr, "Bearer ") {
					capturedToken = strings.TrimPrefix(authStr, "Bearer ")
					tokenCaptured = true
					fmt.Printf("✓ Captured access token from network request\n")
				}
			}
		}
	})

	if err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.Navigate(omaHelenURL),
	); err != nil {
		return fmt.Errorf("navigating to login page: %w", err)
	}

	// Wait for user to press Enter
	fmt.Scanln()

	fmt.Println("Extracting cookies...")
	cookies, err := helen.ExtractCookies(ctx)
	if err != nil {
		return fmt.Errorf("extracting cookies: %w", err)
	}

	if capturedToken == "" {
		return fmt.Errorf("no access token captured - make sure you logged in and the app loaded your consumption data")
	}

	acct.AccessToken = capturedToken
	acct.Cookies = cookies

	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("✓ Saved access token and %d cookies for %s\n", len(cookies), acct.Username)
	fmt.Println("The captured session is used until it expires, then password login takes over")
	return nil
}
