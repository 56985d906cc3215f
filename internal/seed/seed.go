// Package seed bootstraps a demo studio so a fresh self-hosted install is
// browsable out of the box.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	"gorm.io/gorm"
)

const (
	demoStudioName     = "Demo Studio"
	demoStudioSlug     = "demo"
	demoLocationName   = "Main Room"
	demoInstructorName = "Alex Morgan"
	demoClassTypeName  = "Open Mat"
)

// EnsureDemoStudio seeds a free-tier demo studio with one location,
// instructor and class type. Existing rows are left untouched.
func EnsureDemoStudio(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var studio catalogdomain.Studio
		err := tx.Where("slug = ?", demoStudioSlug).First(&studio).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		studio = catalogdomain.Studio{
			ID:              node.Generate(),
			Name:            demoStudioName,
			Slug:            demoStudioSlug,
			Currency:        "USD",
			PaymentsEnabled: false,
		}
		if err := tx.Create(&studio).Error; err != nil {
			return err
		}

		location := catalogdomain.Location{
			ID:       node.Generate(),
			StudioID: studio.ID,
			Name:     demoLocationName,
			Timezone: "UTC",
		}
		if err := tx.Create(&location).Error; err != nil {
			return err
		}

		instructor := catalogdomain.Instructor{
			ID:          node.Generate(),
			StudioID:    studio.ID,
			DisplayName: demoInstructorName,
			Active:      true,
		}
		if err := tx.Create(&instructor).Error; err != nil {
			return err
		}

		classType := catalogdomain.ClassType{
			ID:          node.Generate(),
			StudioID:    studio.ID,
			Name:        demoClassTypeName,
			DurationMin: 60,
			PriceAmount: 1500,
			Currency:    "USD",
			Active:      true,
		}
		return tx.Create(&classType).Error
	})
}
