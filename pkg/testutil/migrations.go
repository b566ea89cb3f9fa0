package testutil

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TrackingMigrations returns the schema for the tracking service tables.
func TrackingMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS purchase_orders (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			po_number VARCHAR(100) UNIQUE NOT NULL,
			supplier_id UUID,
			order_date DATE,
			status VARCHAR(50) NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS purchase_order_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			purchase_order_id UUID NOT NULL REFERENCES purchase_orders(id),
			gtin VARCHAR(14),
			ndc VARCHAR(13),
			description TEXT,
			quantity INTEGER NOT NULL DEFAULT 1,
			CONSTRAINT po_items_quantity_positive CHECK (quantity > 0)
		)`,

		`CREATE TABLE IF NOT EXISTS sales_orders (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			so_number VARCHAR(100) UNIQUE NOT NULL,
			customer_id UUID,
			order_date DATE,
			status VARCHAR(50) NOT NULL DEFAULT 'open',
			shipped_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS sales_order_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sales_order_id UUID NOT NULL REFERENCES sales_orders(id),
			gtin VARCHAR(14) NOT NULL,
			description TEXT,
			quantity INTEGER NOT NULL DEFAULT 1,
			quantity_allocated INTEGER NOT NULL DEFAULT 0,
			quantity_shipped INTEGER NOT NULL DEFAULT 0,
			serial_numbers_shipped TEXT[],
			status VARCHAR(50) NOT NULL DEFAULT 'open',
			CONSTRAINT so_items_quantity_positive CHECK (quantity > 0)
		)`,

		`CREATE TABLE IF NOT EXISTS invoices (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			invoice_number VARCHAR(100) UNIQUE NOT NULL,
			purchase_order_id UUID REFERENCES purchase_orders(id),
			invoice_date DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS invoice_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			invoice_id UUID NOT NULL REFERENCES invoices(id),
			gtin VARCHAR(14),
			ndc VARCHAR(13),
			lot_numbers TEXT[],
			quantity INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS product_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			file_id UUID NOT NULL,
			gtin VARCHAR(14) NOT NULL,
			serial_number VARCHAR(100) NOT NULL,
			lot_number VARCHAR(100),
			expiration_date DATE,
			event_time TIMESTAMPTZ NOT NULL,
			po_id UUID REFERENCES purchase_orders(id),
			source_location VARCHAR(255),
			destination_location VARCHAR(255),
			biz_transactions TEXT[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT product_items_sgtin UNIQUE (gtin, serial_number)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_product_items_file ON product_items(file_id)`,
		`CREATE INDEX IF NOT EXISTS idx_product_items_lot ON product_items(gtin, lot_number)`,

		`CREATE TABLE IF NOT EXISTS inventory (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			gtin VARCHAR(14) NOT NULL,
			serial_number VARCHAR(100) NOT NULL,
			lot_number VARCHAR(100),
			expiration_date DATE,
			status VARCHAR(50) NOT NULL DEFAULT 'available',
			quantity INTEGER NOT NULL DEFAULT 1,
			location_id VARCHAR(255),
			po_item_id UUID REFERENCES purchase_order_items(id),
			so_item_id UUID REFERENCES sales_order_items(id),
			last_movement_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT inventory_sgtin UNIQUE (gtin, serial_number),
			CONSTRAINT inventory_status_valid CHECK (status IN ('available', 'allocated', 'shipped', 'expired', 'damaged')),
			CONSTRAINT inventory_quantity_positive CHECK (quantity > 0)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_inventory_gtin_status ON inventory(gtin, status)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_so_item ON inventory(so_item_id) WHERE so_item_id IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS inventory_transactions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			inventory_id UUID NOT NULL REFERENCES inventory(id),
			transaction_type VARCHAR(50) NOT NULL,
			from_status VARCHAR(50),
			to_status VARCHAR(50) NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			reference_type VARCHAR(50),
			reference_id UUID,
			from_location_id VARCHAR(255),
			location_id VARCHAR(255),
			notes TEXT,
			performed_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT transaction_type_valid CHECK (transaction_type IN ('receive', 'allocation', 'shipment', 'transfer', 'status_change')),
			CONSTRAINT transactions_quantity_positive CHECK (quantity > 0)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_inventory ON inventory_transactions(inventory_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_reference ON inventory_transactions(reference_type, reference_id)`,

		`CREATE TABLE IF NOT EXISTS validation_sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			purchase_order_id UUID NOT NULL REFERENCES purchase_orders(id),
			file_id UUID,
			status VARCHAR(50) NOT NULL DEFAULT 'active',
			total_scanned INTEGER NOT NULL DEFAULT 0,
			total_matched INTEGER NOT NULL DEFAULT 0,
			total_mismatched INTEGER NOT NULL DEFAULT 0,
			total_unknown INTEGER NOT NULL DEFAULT 0,
			started_by UUID NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			CONSTRAINT sessions_counters_consistent CHECK (total_scanned = total_matched + total_mismatched + total_unknown)
		)`,

		`CREATE TABLE IF NOT EXISTS scanned_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			session_id UUID NOT NULL REFERENCES validation_sessions(id),
			raw_data TEXT NOT NULL,
			gtin VARCHAR(14),
			serial_number VARCHAR(100),
			lot_number VARCHAR(100),
			match_status VARCHAR(50) NOT NULL,
			matched_po_id UUID REFERENCES purchase_orders(id),
			matched_item_id UUID REFERENCES product_items(id),
			scanned_by UUID NOT NULL,
			scanned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT match_status_valid CHECK (match_status IN ('MATCH_PO', 'MATCH_DIFFERENT_PO', 'MATCH_NO_PO', 'NO_MATCH', 'UNKNOWN'))
		)`,

		`CREATE TABLE IF NOT EXISTS epcis_po_associations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			file_id UUID NOT NULL,
			purchase_order_id UUID NOT NULL REFERENCES purchase_orders(id),
			method VARCHAR(20) NOT NULL DEFAULT 'auto',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			confirmed_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT file_po UNIQUE (file_id, purchase_order_id)
		)`,
	}
}

// ApplyMigrations runs the given DDL statements in order.
func ApplyMigrations(ctx context.Context, db *sqlx.DB, migrations []string) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// trackingTables lists all tracking tables in dependency order for truncation.
var trackingTables = []string{
	"scanned_items",
	"validation_sessions",
	"epcis_po_associations",
	"inventory_transactions",
	"inventory",
	"product_items",
	"invoice_items",
	"invoices",
	"sales_order_items",
	"sales_orders",
	"purchase_order_items",
	"purchase_orders",
}
