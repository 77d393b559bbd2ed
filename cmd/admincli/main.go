// Command admincli is the three-option operator console of spec.md §6:
// list registered plants, query the CO2 average over a time range, or
// exit. A thin HTTP client over the administration service, in the
// same plain net/http-and-bufio style as cmd/plant.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

func main() {
	baseURL := flag.String("admin-url", "http://localhost:8080", "administration service base URL")
	flag.Parse()

	reader := bufio.NewReader(os.Stdin)
	client := &http.Client{}

	for {
		fmt.Println()
		fmt.Println("1) list registered plants")
		fmt.Println("2) CO2 average over a time range")
		fmt.Println("3) exit")
		fmt.Print("> ")

		choice, err := readLine(reader)
		if err != nil {
			return
		}

		switch strings.TrimSpace(choice) {
		case "1":
			listPlants(client, *baseURL)
		case "2":
			queryCO2Average(client, *baseURL, reader)
		case "3":
			return
		default:
			fmt.Println("invalid choice")
		}
	}
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func listPlants(client *http.Client, baseURL string) {
	resp, err := client.Get(baseURL + "/plants")
	if err != nil {
		fmt.Printf("request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("unexpected status: %d\n", resp.StatusCode)
		return
	}

	var plants []wire.PlantInfo
	if err := json.NewDecoder(resp.Body).Decode(&plants); err != nil {
		fmt.Printf("failed to decode response: %v\n", err)
		return
	}

	if len(plants) == 0 {
		fmt.Println("no plants registered")
		return
	}
	for _, p := range plants {
		fmt.Printf("plant %d: %s:%d (registered at %s)\n", p.PlantID, p.Address, p.Port,
			time.Unix(0, p.RegistrationTime).Format(time.RFC3339))
	}
}

func queryCO2Average(client *http.Client, baseURL string, reader *bufio.Reader) {
	fmt.Print("from (RFC3339, e.g. 2026-08-01T00:00:00Z): ")
	t1Str, err := readLine(reader)
	if err != nil {
		return
	}
	fmt.Print("to (RFC3339): ")
	t2Str, err := readLine(reader)
	if err != nil {
		return
	}

	t1, err := time.Parse(time.RFC3339, t1Str)
	if err != nil {
		fmt.Printf("invalid 'from' timestamp: %v\n", err)
		return
	}
	t2, err := time.Parse(time.RFC3339, t2Str)
	if err != nil {
		fmt.Printf("invalid 'to' timestamp: %v\n", err)
		return
	}

	q := url.Values{}
	q.Set("t1", strconv.FormatInt(t1.UnixMilli(), 10))
	q.Set("t2", strconv.FormatInt(t2.UnixMilli(), 10))

	resp, err := client.Get(baseURL + "/statistics/co2/average?" + q.Encode())
	if err != nil {
		fmt.Printf("request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fmt.Println("no CO2 samples in that range")
		return
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("unexpected status: %d\n", resp.StatusCode)
		return
	}

	var body struct {
		Average float64 `json:"average"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Printf("failed to decode response: %v\n", err)
		return
	}
	fmt.Printf("average CO2: %.4f\n", body.Average)
}
