// ABOUTME: Demo-data seeding from YAML fixture files
// ABOUTME: Builds estimates through the store API so every invariant applies

package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scopebook/scopebook/internal/store"
)

// Fixture is the top-level YAML document.
type Fixture struct {
	Estimates []EstimateFixture `yaml:"estimates"`
}

// EstimateFixture describes one estimate with its content and views.
type EstimateFixture struct {
	Title    string           `yaml:"title"`
	Sections []SectionFixture `yaml:"sections"`
	Views    []ViewFixture    `yaml:"views"`
}

// SectionFixture describes one section and its items.
type SectionFixture struct {
	Name  string        `yaml:"name"`
	Items []ItemFixture `yaml:"items"`
}

// ItemFixture describes one item line. Prices maps view names to the
// per-view price.
type ItemFixture struct {
	Name     string             `yaml:"name"`
	Unit     string             `yaml:"unit"`
	Quantity float64            `yaml:"quantity"`
	Prices   map[string]float64 `yaml:"prices"`
}

// ViewFixture describes one view. The estimate's initial view is reused
// for the first fixture view instead of creating a second one.
type ViewFixture struct {
	Name          string   `yaml:"name"`
	Password      string   `yaml:"password"`
	Intro         string   `yaml:"intro"`
	HideSections  []string `yaml:"hide_sections"`
	HideItems     []string `yaml:"hide_items"`
}

// Load reads and parses a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture file: %w", err)
	}

	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture file: %w", err)
	}
	return &fx, nil
}

// Seeder applies fixtures to a store.
type Seeder struct {
	store  store.Store
	logger *slog.Logger
}

// NewSeeder creates a Seeder over the given store.
func NewSeeder(st store.Store) *Seeder {
	return &Seeder{
		store:  st,
		logger: slog.Default().With("component", "seed"),
	}
}

// Apply creates every fixture estimate for the given owner. Each
// estimate is built through the normal store operations, so ordering,
// settings backfill and totals behave exactly as they would for a user.
func (s *Seeder) Apply(ctx context.Context, ownerID string, fx *Fixture) error {
	for _, ef := range fx.Estimates {
		if err := s.applyEstimate(ctx, ownerID, ef); err != nil {
			return fmt.Errorf("seeding estimate %q: %w", ef.Title, err)
		}
		s.logger.Info("seeded estimate", "title", ef.Title, "owner", ownerID)
	}
	return nil
}

func (s *Seeder) applyEstimate(ctx context.Context, ownerID string, ef EstimateFixture) error {
	est, err := s.store.CreateEstimate(ctx, ownerID, ef.Title)
	if err != nil {
		return err
	}

	// Resolve views first so item prices can land per view. The initial
	// view minted at creation takes the first fixture view's identity.
	tree, err := s.store.GetEstimateTree(ctx, ownerID, est.ID)
	if err != nil {
		return err
	}
	views := make(map[string]*store.View)
	for i, vf := range ef.Views {
		var view *store.View
		if i == 0 {
			view = tree.Views[0]
			name := vf.Name
			if err := s.store.UpdateView(ctx, ownerID, view.ID, store.ViewUpdate{Name: &name}); err != nil {
				return err
			}
		} else {
			view, err = s.store.CreateView(ctx, ownerID, est.ID, vf.Name)
			if err != nil {
				return err
			}
		}
		upd := store.ViewUpdate{}
		if vf.Password != "" {
			upd.Password = &vf.Password
		}
		if vf.Intro != "" {
			upd.Intro = &vf.Intro
		}
		if upd.Password != nil || upd.Intro != nil {
			if err := s.store.UpdateView(ctx, ownerID, view.ID, upd); err != nil {
				return err
			}
		}
		views[vf.Name] = view
	}

	sectionIDs := make(map[string]string)
	itemIDs := make(map[string]string)
	for _, sf := range ef.Sections {
		sec, err := s.store.CreateSection(ctx, ownerID, est.ID, sf.Name)
		if err != nil {
			return err
		}
		sectionIDs[sf.Name] = sec.ID

		for _, itf := range sf.Items {
			item, err := s.store.CreateItem(ctx, ownerID, sec.ID, itf.Name, itf.Unit, itf.Quantity)
			if err != nil {
				return err
			}
			itemIDs[itf.Name] = item.ID

			for viewName, price := range itf.Prices {
				view, ok := views[viewName]
				if !ok {
					return fmt.Errorf("item %q prices unknown view %q", itf.Name, viewName)
				}
				p := price
				err := s.store.SetItemSetting(ctx, ownerID, view.ID, item.ID, store.ItemSettingUpdate{Price: &p})
				if err != nil {
					return err
				}
			}
		}
	}

	for _, vf := range ef.Views {
		view := views[vf.Name]
		for _, name := range vf.HideSections {
			secID, ok := sectionIDs[name]
			if !ok {
				return fmt.Errorf("view %q hides unknown section %q", vf.Name, name)
			}
			if err := s.store.SetSectionVisibility(ctx, ownerID, view.ID, secID, false); err != nil {
				return err
			}
		}
		visible := false
		for _, name := range vf.HideItems {
			itemID, ok := itemIDs[name]
			if !ok {
				return fmt.Errorf("view %q hides unknown item %q", vf.Name, name)
			}
			err := s.store.SetItemSetting(ctx, ownerID, view.ID, itemID, store.ItemSettingUpdate{Visible: &visible})
			if err != nil {
				return err
			}
		}
	}

	return nil
}
