// Package db bootstraps the Postgres schema. Everything is idempotent
// (IF NOT EXISTS / ON CONFLICT), so it is safe to run at every startup.
package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS customers (
	id UUID PRIMARY KEY,
	auth0_id TEXT UNIQUE NOT NULL,
	stripe_id TEXT,
	email TEXT,
	name TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bikes (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	code TEXT UNIQUE NOT NULL,
	imei TEXT UNIQUE NOT NULL,
	location POINT NOT NULL DEFAULT point(0, 0),
	battery_level INTEGER NOT NULL DEFAULT 100,
	status TEXT NOT NULL DEFAULT 'available',
	hourly_rate BIGINT NOT NULL DEFAULT 0,
	per_minute_rate BIGINT,
	display_name TEXT,
	image_url TEXT
);

CREATE TABLE IF NOT EXISTS rides (
	id UUID PRIMARY KEY,
	bike_id UUID NOT NULL REFERENCES bikes(id),
	rider_id UUID NOT NULL REFERENCES customers(id),
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	start_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_lng DOUBLE PRECISION NOT NULL DEFAULT 0,
	end_lat DOUBLE PRECISION,
	end_lng DOUBLE PRECISION,
	distance_meters DOUBLE PRECISION NOT NULL DEFAULT 0,
	paused_seconds BIGINT NOT NULL DEFAULT 0,
	paused_at TIMESTAMPTZ,
	hourly_rate BIGINT NOT NULL DEFAULT 0,
	cost BIGINT,
	charge_created_at TIMESTAMPTZ
);
DROP INDEX IF EXISTS rides_rider_active_idx;
CREATE UNIQUE INDEX IF NOT EXISTS rides_rider_active_key ON rides (rider_id) WHERE ended_at IS NULL AND cancelled_at IS NULL;

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	bike_id UUID NOT NULL REFERENCES bikes(id),
	user_id UUID NOT NULL REFERENCES customers(id),
	package_type TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	cancelled_at TIMESTAMPTZ,
	used_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS reservations_bike_window_idx ON reservations (bike_id, start_time, end_time) WHERE cancelled_at IS NULL;

CREATE TABLE IF NOT EXISTS wallets (
	user_id UUID PRIMARY KEY REFERENCES customers(id),
	balance BIGINT NOT NULL DEFAULT 0,
	deposit BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'XOF',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS wallet_ledger (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES customers(id),
	entry_type TEXT NOT NULL,
	amount BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	ref_id UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS wallet_ledger_ref_idx ON wallet_ledger (entry_type, ref_id) WHERE ref_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS plans (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	description TEXT,
	package_type TEXT NOT NULL,
	base_price BIGINT NOT NULL,
	discount_percent BIGINT NOT NULL DEFAULT 0,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES customers(id),
	plan_id UUID NOT NULL REFERENCES plans(id),
	package_type TEXT NOT NULL,
	price_paid BIGINT NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS incidents (
	id UUID PRIMARY KEY,
	bike_id UUID NOT NULL REFERENCES bikes(id),
	ride_id UUID REFERENCES rides(id),
	reporter_id UUID NOT NULL REFERENCES customers(id),
	type TEXT NOT NULL,
	severity INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'reported',
	refund_amount BIGINT,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS packages (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS formulas (
	id UUID PRIMARY KEY,
	package_id UUID NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	hourly_rate BIGINT NOT NULL,
	daily_cap BIGINT,
	unlock_fee BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS promotions (
	id UUID PRIMARY KEY,
	code TEXT UNIQUE NOT NULL,
	discount_percent BIGINT NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
