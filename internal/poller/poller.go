package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mtkorhonen/helen2mqtt/internal/billing"
	"github.com/mtkorhonen/helen2mqtt/internal/config"
	"github.com/mtkorhonen/helen2mqtt/internal/database"
	"github.com/mtkorhonen/helen2mqtt/internal/entities"
	"github.com/mtkorhonen/helen2mqtt/internal/helen"
	"github.com/mtkorhonen/helen2mqtt/internal/metrics"
	"github.com/mtkorhonen/helen2mqtt/internal/publisher"
	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

// snapshots kept per account before old rows are pruned
const snapshotRetention = 1000

const defaultInterval = 3 * time.Hour

// SensorPublisher pushes a resolved sensor set to Home Assistant and
// retracts discovery configs when their entities go away
type SensorPublisher interface {
	PublishSensors(dev publisher.Device, sensors []models.Sensor) error
	ClearDiscovery(objectIDs []string) error
}

// Poller drives the fetch, derive, store, publish cycle for every
// configured account. The config file is re-read each cycle so edits
// apply without a restart.
type Poller struct {
	configPath string
	db         *database.DB
	registry   *entities.Registry
	pub        SensorPublisher

	clients map[string]*helen.Client

	// Now returns the current time, replaceable in tests
	Now func() time.Time
	// NewClient builds an API client for an account, replaceable in tests
	NewClient func(acct config.Account) *helen.Client
}

// New creates a poller reading its accounts from the config at configPath
func New(configPath string, db *database.DB, pub SensorPublisher) *Poller {
	return &Poller{
		configPath: configPath,
		db:         db,
		registry:   entities.NewRegistry(db),
		pub:        pub,
		clients:    make(map[string]*helen.Client),
		Now:        time.Now,
		NewClient:  newClient,
	}
}

func newClient(acct config.Account) *helen.Client {
	opts := []helen.Option{helen.WithVAT(acct.GetVAT())}
	if acct.AccessToken != "" {
		opts = append(opts, helen.WithSession(acct.AccessToken, acct.Cookies))
	}
	return helen.NewClient(acct.Username, acct.Password, opts...)
}

// Run polls on the configured schedule until the context is cancelled.
// Cycles never overlap: the next wait starts only after the previous
// cycle finishes.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.RunCycle(ctx); err != nil {
			fmt.Printf("⚠ Cycle failed: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.nextWait()):
		}
	}
}

// nextWait reads the schedule from the config: either a duration like
// "3h" or a standard cron expression like "0 */3 * * *"
func (p *Poller) nextWait() time.Duration {
	cfg, _, err := config.Load(p.configPath)
	if err != nil {
		fmt.Printf("⚠ Cannot re-read config, keeping default interval: %v\n", err)
		return defaultInterval
	}

	interval := cfg.GetPollInterval()
	if d, err := time.ParseDuration(interval); err == nil && d > 0 {
		return d
	}

	if sched, err := cron.ParseStandard(interval); err == nil {
		now := p.Now()
		return sched.Next(now).Sub(now)
	}

	fmt.Printf("⚠ Invalid poll_interval %q, using %s\n", interval, defaultInterval)
	return defaultInterval
}

// RunCycle polls every configured account once, sequentially. A failing
// account does not stop the others; its last stored values are
// re-published instead.
func (p *Poller) RunCycle(ctx context.Context) error {
	cfg, _, err := config.Load(p.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured: run helen2mqtt setup first")
	}

	p.dropRemoved(cfg)

	var firstErr error
	for i := range cfg.Accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.pollIndex(ctx, cfg, i); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// dropRemoved stops tracking accounts deleted from the config and
// retracts the discovery configs of their entities. Rows holding a bare
// legacy object id stay registered for the first account to adopt.
func (p *Poller) dropRemoved(cfg *config.Config) {
	ids := accountIDs(cfg)
	active := make(map[string]bool, len(ids))
	for _, id := range ids {
		active[id] = true
	}
	for id := range p.clients {
		if !active[id] {
			delete(p.clients, id)
		}
	}

	removed, err := p.registry.PruneRemoved(ids)
	if err != nil {
		fmt.Printf("⚠ Cannot prune entities of removed accounts: %v\n", err)
		return
	}
	if len(removed) == 0 {
		return
	}

	objectIDs := make([]string, len(removed))
	for i, e := range removed {
		objectIDs[i] = e.ObjectID
	}
	if err := p.pub.ClearDiscovery(objectIDs); err != nil {
		fmt.Printf("⚠ Removed %d entities of deleted accounts, but could not clear their discovery configs: %v\n", len(removed), err)
		return
	}
	fmt.Printf("✓ Removed %d entities of deleted accounts\n", len(removed))
}

// PollOne polls a single account, looked up by id or username
func (p *Poller) PollOne(ctx context.Context, accountKey string) error {
	cfg, _, err := config.Load(p.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	acct := cfg.FindAccount(accountKey)
	if acct == nil {
		return fmt.Errorf("no account matching %q in config", accountKey)
	}

	return p.pollIndex(ctx, cfg, cfg.AccountIndex(acct.ID))
}

// pollIndex runs one account's cycle and handles its failure: the error
// is logged with a hint and the last stored snapshot is re-published so
// Home Assistant keeps showing the last known values.
func (p *Poller) pollIndex(ctx context.Context, cfg *config.Config, index int) error {
	acct := cfg.Accounts[index]
	start := time.Now()

	err := p.pollAccount(ctx, cfg, index)
	metrics.ObservePoll(acct.ID, start, err)
	if err == nil {
		return nil
	}

	var authErr *helen.AuthError
	var siteErr *helen.InvalidSiteError
	switch {
	case errors.As(err, &authErr):
		// a cached session may have gone stale, rebuild next cycle
		delete(p.clients, acct.ID)
		fmt.Printf("⚠ %s: authentication failed: %v\n", acct.Title(), err)
		fmt.Println("  Check the credentials in the config, or run 'helen2mqtt login' to capture a fresh session")
	case errors.As(err, &siteErr):
		fmt.Printf("⚠ %s: %v\n", acct.Title(), err)
		fmt.Println("  Fix delivery_site_id in the config, 'helen2mqtt sites' lists the valid ids")
	default:
		fmt.Printf("⚠ %s: %v\n", acct.Title(), err)
	}

	p.republishLast(acct, index)
	return err
}

// pollAccount fetches one account's data, derives the monthly figures,
// stores the snapshot and publishes the sensors
func (p *Poller) pollAccount(ctx context.Context, cfg *config.Config, index int) error {
	acct := cfg.Accounts[index]
	client := p.clientFor(acct)

	fmt.Printf("Polling %s...\n", acct.Title())

	if err := client.SelectDeliverySite(ctx, acct.DeliverySiteID); err != nil {
		return err
	}

	// margin first so spot cost totals include it
	if _, err := client.GetExchangePrices(ctx); err != nil {
		if isAuth(err) {
			return err
		}
		fmt.Printf("  ⚠ exchange prices unavailable: %v\n", err)
	}

	loc := p.location(cfg)
	now := p.Now().In(loc)
	curStart, curEnd := billing.MonthRange(now)
	lastStart, lastEnd := billing.MonthRange(curStart.AddDate(0, 0, -1))

	current, err := client.DailyMeasurements(ctx, curStart, curEnd)
	if err != nil {
		return fmt.Errorf("current month measurements: %w", err)
	}
	last, err := client.DailyMeasurements(ctx, lastStart, lastEnd)
	if err != nil {
		return fmt.Errorf("last month measurements: %w", err)
	}

	in := billing.Inputs{
		CurrentMonthConsumption: helen.TotalConsumption(current),
		LastMonthConsumption:    helen.TotalConsumption(last),
		DailyAverageConsumption: helen.DailyAverage(current),
		ExchangeMargin:          client.Margin(),
	}

	if acct.IncludeTransferCosts {
		in.TransferCost, err = client.TransferFees(ctx, curStart, curEnd)
		if err != nil {
			return fmt.Errorf("transfer fees: %w", err)
		}
	}

	contractType, err := client.ContractType(ctx)
	if err != nil {
		return fmt.Errorf("contract type: %w", err)
	}

	in.BasePrice, err = client.ContractBasePrice(ctx)
	if err != nil {
		if isAuth(err) || acct.BasePrice == nil {
			return fmt.Errorf("contract base price: %w", err)
		}
		fmt.Printf("  ⚠ contract base price unavailable, using configured override: %v\n", err)
	}
	if acct.BasePrice != nil {
		in.BasePrice = *acct.BasePrice
	}

	in.UnitPrice, err = client.ContractUnitPrice(ctx)
	if err != nil {
		if isAuth(err) {
			return err
		}
		fmt.Printf("  ⚠ contract unit price unavailable: %v\n", err)
		in.UnitPrice = 0
	}
	if acct.UnitPrice != nil {
		in.UnitPrice = *acct.UnitPrice
	}

	market, err := client.GetMarketPrices(ctx)
	if err != nil {
		if isAuth(err) {
			return err
		}
		fmt.Printf("  ⚠ market prices unavailable: %v\n", err)
		market = &helen.MarketPrices{}
	}
	in.PriceLastMonth = market.LastMonth
	in.PriceCurrentMonth = market.CurrentMonth
	in.PriceNextMonth = market.NextMonth
	if acct.UnitPrice != nil {
		in.PriceCurrentMonth = *acct.UnitPrice
	}

	in.SpotCostCurrentMonth, err = client.SpotCosts(ctx, curStart, curEnd)
	if err != nil {
		if isAuth(err) {
			return err
		}
		fmt.Printf("  ⚠ spot costs unavailable: %v\n", err)
	}
	in.SpotCostLastMonth, err = client.SpotCosts(ctx, lastStart, lastEnd)
	if err != nil {
		if isAuth(err) {
			return err
		}
		fmt.Printf("  ⚠ last month spot costs unavailable: %v\n", err)
	}

	in.UsageImpact, err = client.UsageImpact(ctx, curStart, curEnd)
	if err != nil {
		if isAuth(err) {
			return err
		}
		fmt.Printf("  ⚠ usage impact unavailable: %v\n", err)
	}

	in.Kind, err = billing.Detect(acct.GetContractType(), contractType)
	if err != nil {
		// no cost sensor for this account, consumption still publishes
		fmt.Printf("  ⚠ %v\n", err)
	}
	if in.Kind == billing.KindExchange && acct.UnitPrice != nil {
		fmt.Println("  ⚠ unit price override is not used with exchange contracts")
	}

	snap, err := billing.Derive(in)
	if err != nil {
		return err
	}
	snap.AccountID = acct.ID
	snap.SiteID = client.SiteID()
	snap.Month = billing.MonthKey(now)
	snap.FetchedAt = p.Now().UTC()

	if err := p.db.InsertSnapshot(snap); err != nil {
		return err
	}
	if err := p.db.PruneSnapshots(acct.ID, snapshotRetention); err != nil {
		return err
	}

	if index == 0 {
		adopted, err := p.registry.AdoptLegacy(acct.ID, accountIDs(cfg))
		if err != nil {
			return fmt.Errorf("adopting legacy entities: %w", err)
		}
		if adopted > 0 {
			fmt.Printf("  ✓ Adopted %d legacy entities\n", adopted)
		}
	}

	sensors := billing.Sensors(snap, acct.IncludeTransferCosts)
	if err := p.registry.Resolve(sensors, acct.ID, index, acct.DeliverySiteID); err != nil {
		return fmt.Errorf("resolving entities: %w", err)
	}

	if err := p.pub.PublishSensors(deviceFor(acct), sensors); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	if err := p.db.MarkSnapshotPublished(snap.ID); err != nil {
		return err
	}

	metrics.UpdateSnapshot(acct.ID, snap.CurrentMonthConsumption, snap.CurrentMonthCost)
	fmt.Printf("✓ %s: %.2f kWh this month, %.2f EUR estimated\n", acct.Title(), snap.CurrentMonthConsumption, snap.CurrentMonthCost)

	return nil
}

// republishLast pushes the newest stored snapshot again so entities keep
// their last known values through an outage
func (p *Poller) republishLast(acct config.Account, index int) {
	snap, err := p.db.LatestSnapshot(acct.ID)
	if err != nil || snap == nil {
		return
	}

	sensors := billing.Sensors(snap, acct.IncludeTransferCosts)
	if err := p.registry.Resolve(sensors, acct.ID, index, acct.DeliverySiteID); err != nil {
		return
	}
	if err := p.pub.PublishSensors(deviceFor(acct), sensors); err != nil {
		return
	}

	fmt.Printf("  Keeping last known values from %s\n", snap.FetchedAt.Local().Format("2006-01-02 15:04"))
}

func (p *Poller) clientFor(acct config.Account) *helen.Client {
	if c, ok := p.clients[acct.ID]; ok {
		return c
	}
	c := p.NewClient(acct)
	c.OnRequest = metrics.ObserveAPIRequest
	p.clients[acct.ID] = c
	return c
}

func (p *Poller) location(cfg *config.Config) *time.Location {
	loc, err := time.LoadLocation(cfg.GetTimezone())
	if err != nil {
		fmt.Printf("⚠ Unknown timezone %q, using UTC\n", cfg.GetTimezone())
		return time.UTC
	}
	return loc
}

func deviceFor(acct config.Account) publisher.Device {
	return publisher.Device{ID: acct.ID, Name: acct.Title()}
}

func accountIDs(cfg *config.Config) []string {
	ids := make([]string, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		ids[i] = a.ID
	}
	return ids
}

func isAuth(err error) bool {
	var authErr *helen.AuthError
	return errors.As(err, &authErr)
}
