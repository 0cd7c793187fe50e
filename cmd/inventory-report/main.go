package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"spin-rewards/internal/database"
	"spin-rewards/internal/models"
)

// inventory-report prints per-prize stock for the configured database.
func main() {
	dsn := flag.String("db", "", "database DSN, defaults to DATABASE_URL")
	flag.Parse()

	_ = godotenv.Load()
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := database.New(ctx, *dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open database:", err)
		os.Exit(1)
	}
	defer store.Close()

	lines, err := store.InventorySummary(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "inventory:", err)
		os.Exit(1)
	}
	printReport(os.Stdout, lines)
}

func printReport(out io.Writer, lines []models.InventoryLine) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIZE\tACTIVE\tTOTAL\tWON\tREMAINING\tREDEEMED")
	for _, l := range lines {
		total, remaining := "unlimited", "unlimited"
		if l.QuantityTotal != nil {
			total = fmt.Sprint(*l.QuantityTotal)
		}
		if l.Remaining != nil {
			remaining = fmt.Sprint(*l.Remaining)
		}
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%d\t%s\t%d\n",
			l.PrizeID, l.Title, l.Active, total, l.QuantityRedeemed, remaining, l.Redeemed)
	}
	w.Flush()
}
