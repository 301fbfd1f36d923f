package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/blooddrive/internal/api"
	"github.com/kkkkikiki/blooddrive/internal/config"
	"github.com/kkkkikiki/blooddrive/internal/database"
	"github.com/kkkkikiki/blooddrive/internal/logger"
	"github.com/kkkkikiki/blooddrive/internal/model"
	"github.com/kkkkikiki/blooddrive/internal/repository"
)

// LoadResult gathers aggregated metrics for the run.
// LatencySum is in nanoseconds.
type LoadResult struct {
	TotalRequests int64
	PendingCount  int64
	WaitlistCount int64
	ErrorCount    int64
	LatencySum    int64
}

const defaultTimeout = 30 * time.Second

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "Service base URL")
		donors  = flag.Int("donors", 2000, "Number of donors racing for seats")
		seats   = flag.Int("seats", 500, "Campaign capacity")
		workers = flag.Int("workers", 50, "Concurrent clients")
		rps     = flag.Int("rps", 700, "Target enroll requests per second")
	)
	flag.Parse()

	if err := run(*baseURL, *donors, *seats, *workers, *rps); err != nil {
		fmt.Fprintf(os.Stderr, "enroll-load: %v\n", err)
		os.Exit(1)
	}
}

func run(baseURL string, donors, seats, workers, rps int) error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log, err := logger.New("warn", "console", "enroll-load")
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.NewDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{Transport: transport, Timeout: defaultTimeout}

	organizer, donorIDs, err := seedUsers(ctx, repository.NewUserRepository(db.Postgres), donors)
	if err != nil {
		return err
	}

	campaignID, err := createCampaign(ctx, httpClient, baseURL, organizer, seats)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	if err := submitQuestionnaires(ctx, httpClient, baseURL, donorIDs, workers); err != nil {
		return fmt.Errorf("failed to submit questionnaires: %w", err)
	}

	fmt.Println("==========================================")
	fmt.Println("Enrollment load test")
	fmt.Println("==========================================")
	fmt.Printf("Campaign ID : %s\n", campaignID)
	fmt.Printf("Seats       : %d\n", seats)
	fmt.Printf("Donors      : %d\n", donors)
	fmt.Printf("Target RPS  : %d\n", rps)
	fmt.Println("==========================================")

	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	enroll := api.NewClient[api.EnrollRequest, api.EnrollmentResponse](httpClient, baseURL, api.EnrollProcedure)

	var (
		result    LoadResult
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, donors)
	)

	queue := make(chan string)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, id := range donorIDs {
			select {
			case queue <- id:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	start := time.Now()
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for donorID := range queue {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				latency, ok := doEnroll(enroll, campaignID, donorID, &result)
				if ok {
					mu.Lock()
					latencies = append(latencies, latency)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	totalDur := time.Since(start)

	succeeded := result.PendingCount + result.WaitlistCount
	var avgLatency time.Duration
	if succeeded > 0 {
		avgLatency = time.Duration(result.LatencySum / succeeded)
	}

	fmt.Println("==========================================")
	fmt.Println("Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration     : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Requests     : %d\n", result.TotalRequests)
	fmt.Printf("Pending      : %d\n", result.PendingCount)
	fmt.Printf("Waitlisted   : %d\n", result.WaitlistCount)
	fmt.Printf("Errors       : %d\n", result.ErrorCount)
	fmt.Printf("Actual RPS   : %.2f\n", float64(result.TotalRequests)/totalDur.Seconds())
	fmt.Printf("Avg latency  : %v\n", avgLatency)
	fmt.Printf("P95 latency  : %v\n", p95(latencies))
	fmt.Println("==========================================")

	fmt.Println("Seat consistency check")
	fmt.Println("==========================================")
	if err := verifySeats(ctx, httpClient, baseURL, campaignID, result.PendingCount); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		return err
	}
	fmt.Println("OK: seat counter matches enrollments")
	return nil
}

// seedUsers makes sure an organizer and the donors exist. The load run
// owns these ids so it never touches real accounts.
func seedUsers(ctx context.Context, users *repository.UserRepository, donors int) (string, []string, error) {
	run := uuid.NewString()[:8]
	organizer := "load-org-" + run
	if err := users.EnsureUser(ctx, organizer, model.RoleOrganizer); err != nil {
		return "", nil, err
	}

	ids := make([]string, donors)
	for i := range ids {
		ids[i] = fmt.Sprintf("load-donor-%s-%05d", run, i)
		if err := users.EnsureUser(ctx, ids[i], model.RoleDonor); err != nil {
			return "", nil, err
		}
	}
	return organizer, ids, nil
}

func createCampaign(ctx context.Context, httpClient *http.Client, baseURL, organizer string, seats int) (string, error) {
	client := api.NewClient[api.CreateCampaignRequest, api.CampaignResponse](httpClient, baseURL, api.CreateCampaignProcedure)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := client.CallUnary(ctx, api.NewRequest(organizer, &api.CreateCampaignRequest{
		CampaignFields: api.CampaignFields{
			Name:      "Enrollment load test",
			Location:  "load-" + uuid.NewString(),
			Date:      time.Now().AddDate(0, 0, 7).Format(time.DateOnly),
			StartTime: "09:00",
			EndTime:   "17:00",
			MaxDonors: seats,
		},
	}))
	if err != nil {
		return "", err
	}
	if resp.Msg.Campaign == nil {
		return "", errors.New("campaign response is nil")
	}
	return resp.Msg.Campaign.ID, nil
}

func submitQuestionnaires(ctx context.Context, httpClient *http.Client, baseURL string, donorIDs []string, workers int) error {
	client := api.NewClient[api.SubmitQuestionnaireRequest, api.QuestionnaireResponse](httpClient, baseURL, api.SubmitQuestionnaireProcedure)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range donorIDs {
		g.Go(func() error {
			_, err := client.CallUnary(gctx, api.NewRequest(id, &api.SubmitQuestionnaireRequest{
				Answers: model.HealthAnswers{
					WeightKg:  72,
					HeightCm:  178,
					BloodType: model.BloodTypeO,
					RhFactor:  model.RhPositive,
				},
			}))
			return err
		})
	}
	return g.Wait()
}

// doEnroll performs a single Enroll RPC and records its outcome.
func doEnroll(client *connect.Client[api.EnrollRequest, api.EnrollmentResponse], campaignID, donorID string, result *LoadResult) (time.Duration, bool) {
	// Independent context so a cancelled run still drains in-flight calls
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := client.CallUnary(ctx, api.NewRequest(donorID, &api.EnrollRequest{CampaignID: campaignID}))
	latency := time.Since(start)
	if err != nil || resp.Msg.Enrollment == nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return 0, false
	}

	switch resp.Msg.Enrollment.Status {
	case model.EnrollmentPending:
		atomic.AddInt64(&result.PendingCount, 1)
	case model.EnrollmentWaitlist:
		atomic.AddInt64(&result.WaitlistCount, 1)
	default:
		atomic.AddInt64(&result.ErrorCount, 1)
		return 0, false
	}
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	return latency, true
}

func p95(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	idx := int(float64(len(latencies)) * 0.95)
	if idx >= len(latencies) {
		idx = len(latencies) - 1
	}
	return latencies[idx]
}

// verifySeats checks that the campaign never overbooked and that the
// counter agrees with both the enrollments table and the client's tally.
func verifySeats(ctx context.Context, httpClient *http.Client, baseURL, campaignID string, pending int64) error {
	client := api.NewClient[api.CampaignIDRequest, api.SeatReportResponse](httpClient, baseURL, api.ReconcileSeatsProcedure)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := client.CallUnary(ctx, api.NewRequest("", &api.CampaignIDRequest{CampaignID: campaignID}))
	if err != nil {
		return fmt.Errorf("failed to reconcile seats: %w", err)
	}
	report := resp.Msg.Report

	fmt.Printf("Max donors        : %d\n", report.MaxDonors)
	fmt.Printf("Seat counter      : %d\n", report.Counter)
	fmt.Printf("Seat holders (DB) : %d\n", report.SeatHolders)
	fmt.Printf("Pending (client)  : %d\n", pending)

	if report.Counter > report.MaxDonors {
		return fmt.Errorf("overbooked: counter=%d > max=%d", report.Counter, report.MaxDonors)
	}
	if report.Drift != 0 {
		return fmt.Errorf("counter drift: counter=%d, holders=%d", report.Counter, report.SeatHolders)
	}
	if int64(report.Counter) != pending {
		return fmt.Errorf("client tally mismatch: counter=%d, pending=%d", report.Counter, pending)
	}
	return nil
}
