package otter

import (
	"testing"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

func TestDelta_Change(t *testing.T) {
	config := &structs.GroupConfig{MinEntities: 0, MaxEntities: 10}
	trigger := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{Change: intPtr(2)},
	}

	target, delta := computeTarget(trigger, config, 3)
	if target != 5 || delta != 2 {
		t.Fatalf("expected target 5 delta 2, got target %v delta %v", target, delta)
	}
}

func TestDelta_ChangeClampedToBounds(t *testing.T) {
	config := &structs.GroupConfig{MinEntities: 1, MaxEntities: 4}

	up := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{Change: intPtr(10)},
	}
	target, delta := computeTarget(up, config, 3)
	if target != 4 || delta != 1 {
		t.Fatalf("expected target 4 delta 1, got target %v delta %v", target, delta)
	}

	down := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{Change: intPtr(-10)},
	}
	target, delta = computeTarget(down, config, 3)
	if target != 1 || delta != -2 {
		t.Fatalf("expected target 1 delta -2, got target %v delta %v", target, delta)
	}
}

func TestDelta_ChangePercentRoundsAwayFromZero(t *testing.T) {
	config := &structs.GroupConfig{MinEntities: 0, MaxEntities: 100}

	// -6.25% of 4 servers is -0.25, which still removes a whole server.
	down := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{ChangePercent: floatPtr(-6.25)},
	}
	target, delta := computeTarget(down, config, 4)
	if target != 3 || delta != -1 {
		t.Fatalf("expected target 3 delta -1, got target %v delta %v", target, delta)
	}

	// +10% of 15 servers is 1.5, which adds two.
	up := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{ChangePercent: floatPtr(10)},
	}
	target, delta = computeTarget(up, config, 15)
	if target != 17 || delta != 2 {
		t.Fatalf("expected target 17 delta 2, got target %v delta %v", target, delta)
	}
}

func TestDelta_DesiredCapacity(t *testing.T) {
	config := &structs.GroupConfig{MinEntities: 0, MaxEntities: 10}
	trigger := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{DesiredCapacity: intPtr(7)},
	}

	target, delta := computeTarget(trigger, config, 3)
	if target != 7 || delta != 4 {
		t.Fatalf("expected target 7 delta 4, got target %v delta %v", target, delta)
	}

	target, delta = computeTarget(trigger, config, 9)
	if target != 7 || delta != -2 {
		t.Fatalf("expected target 7 delta -2, got target %v delta %v", target, delta)
	}
}

func TestDelta_ResyncEnforcesBounds(t *testing.T) {
	config := &structs.GroupConfig{MinEntities: 2, MaxEntities: 5}
	trigger := &structs.Trigger{Kind: structs.TriggerResync}

	// Below the minimum the resync schedules replacements.
	target, delta := computeTarget(trigger, config, 1)
	if target != 2 || delta != 1 {
		t.Fatalf("expected target 2 delta 1, got target %v delta %v", target, delta)
	}

	// Above the maximum the resync removes the excess.
	target, delta = computeTarget(trigger, config, 8)
	if target != 5 || delta != -3 {
		t.Fatalf("expected target 5 delta -3, got target %v delta %v", target, delta)
	}

	// Inside the bounds a resync is a no-op; running it twice changes
	// nothing, which is what makes the self-heal sweep safe.
	for i := 0; i < 2; i++ {
		target, delta = computeTarget(trigger, config, 3)
		if target != 3 || delta != 0 {
			t.Fatalf("expected target 3 delta 0, got target %v delta %v", target, delta)
		}
	}
}

func TestDelta_CeilAwayFromZero(t *testing.T) {
	cases := []struct {
		in  float64
		out int
	}{
		{0.25, 1},
		{-0.25, -1},
		{1.5, 2},
		{-1.5, -2},
		{2, 2},
		{-2, -2},
		{0, 0},
	}

	for _, tc := range cases {
		if got := ceilAwayFromZero(tc.in); got != tc.out {
			t.Fatalf("expected ceilAwayFromZero(%v) to be %v, got %v", tc.in, tc.out, got)
		}
	}
}
