// Package seed writes a small demo data set for local environments.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/internal/docgate"
	"github.com/smallbiznis/freightpay/internal/identity"
	"github.com/smallbiznis/freightpay/internal/load"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DemoAdminUID   = "demo-admin"
	DemoCarrierUID = "demo-carrier"
	DemoShipperUID = "demo-shipper"
	DemoLoadID     = "demo-load-1"
)

// EnsureDemoData inserts demo users, one delivered load and its proof of
// delivery. Existing rows are left untouched.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	now := time.Now().UTC()
	users := []identity.User{
		{UID: DemoAdminUID, Role: authorization.RoleAdmin.String(), Email: "ops@freightpay.local", DisplayName: "FreightPay Ops"},
		{UID: DemoCarrierUID, Role: authorization.RoleCarrier.String(), Email: "billing@carrier.local", DisplayName: "Demo Carrier"},
		{UID: DemoShipperUID, Role: authorization.RoleShipper.String(), Email: "ap@shipper.local", DisplayName: "Demo Shipper"},
	}
	loads := []load.Load{{
		ID:                 DemoLoadID,
		LoadNumber:         "FP-DEMO-000001",
		Status:             "DELIVERED",
		AssignedCarrierUID: DemoCarrierUID,
		PayerUID:           DemoShipperUID,
		PaymentTerms:       "NET30",
		UpdatedAt:          now,
	}}
	docs := []load.Document{{
		ID:        "demo-pod-1",
		LoadID:    DemoLoadID,
		Kind:      docgate.KindPOD,
		URL:       "https://docs.freightpay.local/demo-pod-1.pdf",
		Filename:  "pod.pdf",
		CreatedAt: now,
	}}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip := clause.OnConflict{DoNothing: true}
		if err := tx.Clauses(skip).Create(&users).Error; err != nil {
			return err
		}
		if err := tx.Clauses(skip).Create(&loads).Error; err != nil {
			return err
		}
		return tx.Clauses(skip).Create(&docs).Error
	})
}
