package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/carlink/internal/models"
)

// simConfig controls the size and pace of the simulated marketplace.
type simConfig struct {
	APIURL        string
	Sellers       int
	Buyers        int
	CarsPerSeller int
	Interval      time.Duration
	AcceptRate    float64
	Password      string
	RunID         string
}

func loadConfig() simConfig {
	cfg := simConfig{
		APIURL:        os.Getenv("API_BASE_URL"),
		Sellers:       envInt("SIM_SELLERS", 3),
		Buyers:        envInt("SIM_BUYERS", 6),
		CarsPerSeller: envInt("SIM_CARS_PER_SELLER", 4),
		Interval:      time.Duration(envInt("SIM_TICK_SECONDS", 2)) * time.Second,
		AcceptRate:    0.5,
		Password:      os.Getenv("SIM_PASSWORD"),
		RunID:         os.Getenv("SIM_RUN_ID"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:8080/api"
	}
	if v := os.Getenv("SIM_ACCEPT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.AcceptRate = f
		}
	}
	if cfg.Password == "" {
		cfg.Password = "simulator-password"
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()[:8]
	}
	return cfg
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return def
}

var catalog = map[string][]string{
	"Toyota":     {"Corolla", "Camry", "RAV4", "Prius"},
	"Honda":      {"Civic", "Accord", "CR-V"},
	"Ford":       {"Focus", "Mustang", "F-150"},
	"BMW":        {"3 Series", "X5", "i4"},
	"Tesla":      {"Model 3", "Model Y"},
	"Volkswagen": {"Golf", "Passat", "ID.4"},
	"Kia":        {"Rio", "Sportage", "EV6"},
}

var locations = []string{"London", "Madrid", "Paris", "Berlin", "Istanbul", "Toronto", "Dubai", "Sydney"}

var sortKeys = []models.CarSort{models.SortNewest, models.SortOldest, models.SortLowestPrice, models.SortHighestPrice}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.Intn(len(xs))]
}

// randomCar builds a listing that passes server-side validation.
func randomCar(rng *rand.Rand) models.CarInput {
	brands := make([]string, 0, len(catalog))
	for b := range catalog {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	brand := brands[rng.Intn(len(brands))]

	fuel := pick(rng, []models.FuelType{models.FuelPetrol, models.FuelDiesel, models.FuelHybrid, models.FuelElectric})
	if brand == "Tesla" {
		fuel = models.FuelElectric
	}
	condition := pick(rng, []models.Condition{models.ConditionNew, models.ConditionUsed, models.ConditionCertified})

	year := time.Now().Year() - rng.Intn(12)
	mileage := float64(rng.Intn(15000) * (time.Now().Year() - year + 1))
	if condition == models.ConditionNew {
		year, mileage = time.Now().Year(), float64(rng.Intn(50))
	}
	price := float64(5000+rng.Intn(60000)) - mileage/20
	if price < 1000 {
		price = 1000
	}
	location := pick(rng, locations)

	return models.CarInput{
		Brand:        brand,
		Model:        pick(rng, catalog[brand]),
		Year:         &year,
		Price:        &price,
		Mileage:      &mileage,
		Transmission: pick(rng, []models.Transmission{models.TransmissionAutomatic, models.TransmissionManual, models.TransmissionCVT}),
		FuelType:     fuel,
		Condition:    condition,
		Location:     location,
		Description:  fmt.Sprintf("%s %s in %s", condition, brand, location),
	}
}

// participant is one simulated user with its own session and random source.
type participant struct {
	name   string
	client *apiClient
	user   *models.User
	rng    *rand.Rand
	logger log.FieldLogger
}

type market struct {
	cfg     simConfig
	sellers []*participant
	buyers  []*participant
	logger  log.FieldLogger
}

func newMarket(cfg simConfig, logger log.FieldLogger) *market {
	m := &market{cfg: cfg, logger: logger}
	seed := time.Now().UnixNano()
	for i := 0; i < cfg.Sellers; i++ {
		m.sellers = append(m.sellers, m.newParticipant(fmt.Sprintf("seller-%d", i+1), seed+int64(i)))
	}
	for i := 0; i < cfg.Buyers; i++ {
		m.buyers = append(m.buyers, m.newParticipant(fmt.Sprintf("buyer-%d", i+1), seed+int64(cfg.Sellers+i)))
	}
	return m
}

func (m *market) newParticipant(name string, seed int64) *participant {
	return &participant{
		name:   name,
		client: newAPIClient(m.cfg.APIURL),
		rng:    rand.New(rand.NewSource(seed)),
		logger: m.logger.WithField("participant", name),
	}
}

// setup signs everyone in and lets each seller list its cars.
func (m *market) setup(ctx context.Context) error {
	for _, p := range append(append([]*participant{}, m.sellers...), m.buyers...) {
		email := fmt.Sprintf("%s.%s@carlink.test", p.name, m.cfg.RunID)
		user, err := p.client.signup(ctx, "Sim "+p.name, email, m.cfg.Password)
		if err != nil {
			return fmt.Errorf("sign in %s: %w", p.name, err)
		}
		p.user = user
	}

	listed := 0
	for _, s := range m.sellers {
		for i := 0; i < m.cfg.CarsPerSeller; i++ {
			car, err := s.client.createCar(ctx, randomCar(s.rng))
			if err != nil {
				s.logger.WithError(err).Warn("Failed to list car")
				continue
			}
			listed++
			s.logger.WithFields(log.Fields{"car_id": car.ID.Hex(), "brand": car.Brand, "model": car.Model}).Info("Listed car")
		}
	}
	if listed == 0 {
		return fmt.Errorf("no cars listed")
	}
	return nil
}

// browse searches the listings and sends a buy request for a car the
// buyer does not own.
func (m *market) browse(ctx context.Context, b *participant) {
	q := url.Values{}
	q.Set("sortBy", string(pick(b.rng, sortKeys)))
	q.Set("limit", "20")
	cars, err := b.client.listCars(ctx, q)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to browse cars")
		return
	}

	candidates := cars[:0]
	for _, c := range cars {
		if !c.IsSold && (b.user == nil || c.Seller != b.user.ID) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return
	}

	car := pick(b.rng, candidates)
	req, err := b.client.requestCar(ctx, car.ID.Hex(), fmt.Sprintf("Is the %s %s still available?", car.Brand, car.Model))
	switch status := statusOf(err); {
	case err == nil:
		b.logger.WithFields(log.Fields{"request_id": req.ID.Hex(), "car_id": car.ID.Hex()}).Info("Sent buy request")
	case status == http.StatusBadRequest || status == http.StatusForbidden || status == http.StatusNotFound:
		b.logger.WithError(err).Debug("Buy request refused")
	default:
		b.logger.WithError(err).Warn("Failed to send buy request")
	}
}

// respond answers one pending request per car, accepting with the
// configured probability.
func (m *market) respond(ctx context.Context, s *participant) {
	pending, err := s.client.pendingForSeller(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load pending requests")
		return
	}

	byCar := make(map[string][]models.BuyRequest)
	var order []string
	for _, r := range pending {
		id := r.Car.Hex()
		if _, seen := byCar[id]; !seen {
			order = append(order, id)
		}
		byCar[id] = append(byCar[id], r)
	}

	for _, carID := range order {
		r := pick(s.rng, byCar[carID])
		accept := s.rng.Float64() < m.cfg.AcceptRate
		entry := s.logger.WithFields(log.Fields{"request_id": r.ID.Hex(), "car_id": carID, "accept": accept})
		if err := s.client.respond(ctx, r.ID.Hex(), accept); err != nil {
			if statusOf(err) == http.StatusBadRequest {
				entry.WithError(err).Debug("Request already settled")
				continue
			}
			entry.WithError(err).Warn("Failed to respond to buy request")
			continue
		}
		entry.Info("Responded to buy request")
	}
}

// tick runs one round: all buyers browse concurrently, then all sellers
// respond concurrently.
func (m *market) tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, b := range m.buyers {
		wg.Add(1)
		go func(b *participant) {
			defer wg.Done()
			m.browse(ctx, b)
		}(b)
	}
	wg.Wait()

	for _, s := range m.sellers {
		wg.Add(1)
		go func(s *participant) {
			defer wg.Done()
			m.respond(ctx, s)
		}(s)
	}
	wg.Wait()
}

func (m *market) run(ctx context.Context) error {
	if err := m.setup(ctx); err != nil {
		return err
	}
	m.logger.Info("Marketplace simulation started")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func main() {
	cfg := loadConfig()
	logger := log.StandardLogger()
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	logger.WithFields(log.Fields{
		"api_url":  cfg.APIURL,
		"sellers":  cfg.Sellers,
		"buyers":   cfg.Buyers,
		"interval": cfg.Interval,
		"run_id":   cfg.RunID,
	}).Info("Starting marketplace simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newMarket(cfg, logger.WithField("run_id", cfg.RunID)).run(ctx); err != nil {
		logger.WithError(err).Fatal("Simulation stopped")
	}
	logger.Info("Simulation finished")
}
