// Command dedup-scan runs a whole-vault duplicate scan for one account from
// the command line, typically from cron.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"photo-vault-api/config"
	"photo-vault-api/models"
	"photo-vault-api/services"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.InitDB()

	var (
		ownerID int
		wait    bool
		timeout time.Duration
	)

	flag.IntVar(&ownerID, "owner", 0, "owner user ID to scan (required)")
	flag.BoolVar(&wait, "wait", true, "block until the scan finishes")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "maximum time to wait for completion")
	flag.Parse()

	if ownerID <= 0 {
		log.Fatal("owner must be a positive user ID")
	}

	svc := services.NewDedupScanService(nil)
	scan, err := svc.StartScan(ownerID)
	if err != nil {
		log.Fatalf("failed to start scan: %v", err)
	}
	log.Printf("started dedup scan %s for owner %d", scan.ID, ownerID)

	if !wait {
		return
	}

	deadline := time.Now().Add(timeout)
	for {
		scan, err = svc.Status(ownerID, scan.ID)
		if err != nil {
			log.Fatalf("failed to poll scan: %v", err)
		}
		if scan.IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			log.Fatalf("scan %s still %s after %s", scan.ID, scan.Status, timeout)
		}
		time.Sleep(500 * time.Millisecond)
	}

	if scan.Status == models.DedupScanStatusFailed {
		msg := ""
		if scan.ErrorMessage != nil {
			msg = *scan.ErrorMessage
		}
		log.Fatalf("scan %s failed: %s", scan.ID, msg)
	}

	fmt.Printf("scan %s completed: %d assets scanned, %d exact groups, %d similar groups\n",
		scan.ID, scan.ScannedAssets, scan.DuplicatesFound, scan.SimilarFound)
}
