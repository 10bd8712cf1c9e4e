// Command cleanup removes a manuscript and everything linked to it.
// It prints the impact report first and asks for confirmation unless
// --force is given; --dry-run stops after the report.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"reviewdesk/internal/util"
	"reviewdesk/pkg/cleanup"
	"reviewdesk/pkg/store"
)

func main() {
	var (
		manuscript = flag.String("manuscript", "", "manuscript identifier (uuid, custom id, system id, or submission id)")
		dryRun     = flag.Bool("dry-run", false, "analyze only, delete nothing")
		force      = flag.Bool("force", false, "skip confirmation and delete shared reviewers too")
		timeout    = flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	)
	flag.Parse()
	util.InitLogger(os.Getenv("LOG_LEVEL"))

	if *manuscript == "" {
		flag.Usage()
		os.Exit(2)
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := store.NewGormStore(dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	progress := func(p cleanup.Progress) {
		fmt.Printf("  [%s] %s\n", p.Phase, p.Message)
	}

	analyzer := cleanup.NewAnalyzer(st)
	report, err := analyzer.AnalyzeImpact(ctx, *manuscript, progress)
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}
	printReport(report)

	if *dryRun {
		fmt.Println("\ndry run, nothing deleted")
		return
	}

	reviewerIDs := make([]string, 0, len(report.Reviewers))
	shared := make(map[string]bool, len(report.SharedReviewers))
	for _, s := range report.SharedReviewers {
		shared[s.Reviewer.ID] = true
	}
	held := 0
	for _, r := range report.Reviewers {
		if shared[r.ID] && !*force {
			held++
			continue
		}
		reviewerIDs = append(reviewerIDs, r.ID)
	}
	if held > 0 {
		fmt.Printf("\nholding back %d shared reviewer(s); re-run with --force to delete them too\n", held)
	}

	if !*force && !confirm(report.Manuscript.Title) {
		fmt.Println("aborted")
		return
	}

	executor := cleanup.NewExecutor(st)
	summary, err := executor.DeleteManuscriptData(ctx, report.Manuscript.ID, reviewerIDs, progress)
	printSummary(summary)
	if err != nil {
		log.Fatalf("cleanup: %v", err)
	}
	fmt.Println("\ncleanup complete")
}

func printReport(report cleanup.ImpactReport) {
	ms := report.Manuscript
	fmt.Printf("\nManuscript: %s\n", ms.Title)
	fmt.Printf("  id: %s", ms.ID)
	if ms.CustomID != "" {
		fmt.Printf("  custom id: %s", ms.CustomID)
	}
	fmt.Println()
	fmt.Printf("  reviewers: %d (%d shared with other manuscripts)\n",
		len(report.Reviewers), len(report.SharedReviewers))
	for _, s := range report.SharedReviewers {
		titles := make([]string, 0, len(s.OtherManuscripts))
		for _, other := range s.OtherManuscripts {
			titles = append(titles, other.Title)
		}
		fmt.Printf("    - %s also on: %s\n", s.Reviewer.Name, strings.Join(titles, ", "))
	}
	st := report.Stats
	fmt.Printf("  rows: %d matches, %d invitations, %d queue items, %d publications, %d retractions, %d publication matches, %d assignments\n",
		st.Matches, st.Invitations, st.QueueItems, st.Publications, st.Retractions, st.PublicationMatches, st.Assignments)
}

func printSummary(summary cleanup.DeletionSummary) {
	fmt.Println("\nDeleted:")
	for category, n := range summary.Deleted {
		fmt.Printf("  %-20s %d\n", category, n)
	}
	for _, f := range summary.Failures {
		fmt.Printf("  FAILED %-13s %s\n", f.Category, f.Message)
	}
}

func confirm(title string) bool {
	fmt.Printf("\nDelete %q and all linked records? Type yes to continue: ", title)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}
