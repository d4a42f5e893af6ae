package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	geoGrpc "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/grpc"
)

var maxTourists int = 1000
var reportsPerTourist int = 5
var httpHostPort string = "127.0.0.1:1080"
var grpcHostPort string = "127.0.0.1:10801"

// zones are laid out on a grid around this point
var centerLng, centerLat = 77.21, 28.61

var grpcClient *geoGrpc.GeoAlertClient

var rnd *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
var rndMu sync.Mutex

var failures atomic.Int64

func main() {
	_ = godotenv.Load()
	httpHostPort = common.EnvString("BENCH_HTTP_HOST_PORT", httpHostPort)
	grpcHostPort = common.EnvString("BENCH_GRPC_HOST_PORT", grpcHostPort)

	touristIDs := make([]string, maxTourists)
	for i := range maxTourists {
		touristIDs[i] = "tourist-" + uuid.NewString()
	}
	fmt.Printf("generated %v tourist IDs\n", maxTourists)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", httpHostPort))
	if err != nil {
		log.Fatal("Failed to connect to HTTP server:", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatal("HTTP server not available")
	}
	fmt.Printf("http server verified\n")

	conn, err := grpc.NewClient(grpcHostPort, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal("Failed to connect to gRPC server:", err)
	}
	defer conn.Close()
	grpcClient = geoGrpc.NewGeoAlertClient(conn)
	fmt.Printf("gRPC client connected\n")

	if token := login(); token != "" {
		created := seedZones(token)
		fmt.Printf("seeded %v geofences\n", created)
	} else {
		fmt.Printf("no admin credentials configured, using existing geofences\n")
	}

	var startTime time.Time
	var usedTime time.Duration

	startTime = time.Now()
	wg := sync.WaitGroup{}
	for i := range maxTourists {
		wg.Add(1)
		go func() {
			defer wg.Done()
			walk(touristIDs[i])
		}()
	}
	wg.Wait()
	usedTime = time.Since(startTime)

	total := maxTourists * reportsPerTourist
	fmt.Printf(
		"\ningested %v reports for %v tourists: used time=%v seconds, throughput=%v reports/second, failures=%v\n",
		total, maxTourists, usedTime.Seconds(), float64(total)/usedTime.Seconds(), failures.Load(),
	)

	startTime = time.Now()
	wg = sync.WaitGroup{}
	for range maxTourists {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listAlerts()
		}()
	}
	wg.Wait()
	usedTime = time.Since(startTime)

	fmt.Printf(
		"listed alerts %v times: used time=%v seconds, throughput=%v queries/second\n",
		maxTourists, usedTime.Seconds(), float64(maxTourists)/usedTime.Seconds(),
	)
}

func flipCoin() bool {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Int31n(100000)%2 == 0
}

func rndFloat64(min, max float64, decimal int) float64 {
	rndMu.Lock()
	val := min + rnd.Float64()*(max-min)
	rndMu.Unlock()
	multiplier := math.Pow10(decimal)
	return math.Round(val*multiplier) / multiplier
}

func login() string {
	email := common.EnvString(common.EnvKeyAdminEmail, "")
	password := common.EnvString(common.EnvKeyAdminPassword, "")
	if email == "" || password == "" {
		return ""
	}

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(fmt.Sprintf("http://%s/auth/login", httpHostPort), "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatal("login failed:", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("login failed with status %v", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		log.Fatal("decode login response:", err)
	}
	return token.AccessToken
}

// seedZones creates a 3x3 grid of square geofences around the center.
func seedZones(token string) int {
	risks := []string{"low", "medium", "high"}
	created := 0
	for row := -1; row <= 1; row++ {
		for col := -1; col <= 1; col++ {
			minLng := centerLng + float64(col)*0.01
			minLat := centerLat + float64(row)*0.01
			ring := [][]float64{
				{minLng, minLat}, {minLng + 0.008, minLat}, {minLng + 0.008, minLat + 0.008},
				{minLng, minLat + 0.008}, {minLng, minLat},
			}
			body, _ := json.Marshal(map[string]any{
				"name":        fmt.Sprintf("bench zone %d,%d", row, col),
				"risk_level":  risks[(row+col+2)%3],
				"coordinates": [][][]float64{ring},
			})

			req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/geofences/", httpHostPort), bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				log.Fatal("create geofence failed:", err)
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusCreated {
				created++
			}
		}
	}
	return created
}

func walk(userID string) {
	for i := range reportsPerTourist {
		lat := rndFloat64(centerLat-0.015, centerLat+0.015, 5)
		lng := rndFloat64(centerLng-0.015, centerLng+0.015, 5)
		ingest(userID, lat, lng)
		fmt.Printf("\rsent report %v for tourist %v", i, userID)
		time.Sleep(time.Duration(rndFloat64(50, 250, 0)) * time.Millisecond)
	}
}

func ingest(userID string, lat, lng float64) {
	payload := map[string]any{
		"user_id": userID,
		"lat":     lat,
		"lng":     lng,
		"speed":   rndFloat64(0, 3, 2),
		"source":  "mobile",
	}

	if flipCoin() {
		jsonData, _ := json.Marshal(payload)
		resp, err := http.Post(fmt.Sprintf("http://%s/locations/ingest", httpHostPort), "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			failures.Add(1)
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			failures.Add(1)
		}
		return
	}

	in, err := structpb.NewStruct(payload)
	if err != nil {
		panic(err)
	}
	if _, err := grpcClient.Ingest(context.Background(), in); err != nil {
		failures.Add(1)
		fmt.Printf("\nerror: %v\n", err)
	}
}

func listAlerts() {
	if flipCoin() {
		resp, err := http.Get(fmt.Sprintf("http://%s/alerts/?limit=50", httpHostPort))
		if err != nil {
			fmt.Printf("\nerror: %v\n", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Printf("\nresponse status code != 200: %v\n", resp.StatusCode)
		}
		return
	}

	in, _ := structpb.NewStruct(map[string]any{"limit": 50})
	if _, err := grpcClient.ListAlerts(context.Background(), in); err != nil {
		fmt.Printf("\nerror: %v\n", err)
	}
}
