package otter

import (
	"testing"
	"time"

	"github.com/rackerlabs/otter-sub001/otter/structs"
)

func TestCooldown_GroupClockRejectsPolicy(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	config := &structs.GroupConfig{Cooldown: 60}
	state := structs.NewGroupState()
	state.LastScalingEvent = now.Add(-30 * time.Second)

	trigger := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{ID: "p1", Cooldown: 0},
	}

	if cooldownPermitted(now, config, state, trigger) {
		t.Fatal("expected the unexpired group clock to reject the trigger")
	}

	state.LastScalingEvent = now.Add(-61 * time.Second)
	if !cooldownPermitted(now, config, state, trigger) {
		t.Fatal("expected the expired group clock to admit the trigger")
	}
}

func TestCooldown_PolicyClockRejectsPolicy(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	config := &structs.GroupConfig{Cooldown: 0}
	state := structs.NewGroupState()
	state.PolicyExecutions["p1"] = now.Add(-30 * time.Second)

	trigger := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{ID: "p1", Cooldown: 60},
	}

	if cooldownPermitted(now, config, state, trigger) {
		t.Fatal("expected the unexpired policy clock to reject the trigger")
	}

	// A different policy carries its own clock and is unaffected.
	other := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{ID: "p2", Cooldown: 60},
	}
	if !cooldownPermitted(now, config, state, other) {
		t.Fatal("expected an unrelated policy to be admitted")
	}
}

func TestCooldown_ScheduleAndResyncExempt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	config := &structs.GroupConfig{Cooldown: 600}
	state := structs.NewGroupState()
	state.LastScalingEvent = now.Add(-time.Second)
	state.PolicyExecutions["p1"] = now.Add(-time.Second)

	schedule := &structs.Trigger{
		Kind:   structs.TriggerSchedule,
		Policy: &structs.ScalingPolicy{ID: "p1", Cooldown: 600},
	}
	if !cooldownPermitted(now, config, state, schedule) {
		t.Fatal("expected schedule triggers to bypass the cooldown clocks")
	}

	resync := &structs.Trigger{Kind: structs.TriggerResync}
	if !cooldownPermitted(now, config, state, resync) {
		t.Fatal("expected resync triggers to bypass the cooldown clocks")
	}
}

func TestCooldown_TouchAdvancesBothClocks(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	state := structs.NewGroupState()
	trigger := &structs.Trigger{
		Kind:   structs.TriggerPolicy,
		Policy: &structs.ScalingPolicy{ID: "p1"},
	}

	touchCooldowns(now, state, trigger)

	if !state.LastScalingEvent.Equal(now) {
		t.Fatalf("expected the group clock at %v, got %v", now, state.LastScalingEvent)
	}
	if !state.PolicyExecutions["p1"].Equal(now) {
		t.Fatalf("expected the policy clock at %v, got %v", now, state.PolicyExecutions["p1"])
	}
}
