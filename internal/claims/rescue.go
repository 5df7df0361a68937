package claims

import (
	"fmt"
	"time"
)

// RescueExpiry is passed to the expiry callback when an override lapses.
type RescueExpiry struct {
	TeamID      int
	Vehicle     string
	DisplayName string
	Granter     string
	Rescuer     string
}

// OnRescueExpired sets the callback run, under the serialization point, when
// a rescue override expires.
func (r *Registry) OnRescueExpired(fn func(RescueExpiry)) {
	r.onRescueExpired = fn
}

// GrantRescue lets anyone occupy the vehicle type without a claim for d.
// A grant while one is active replaces it and restarts the timer.
func (r *Registry) GrantRescue(teamID int, name, granter string, d time.Duration) (time.Time, error) {
	v, err := r.vehicle(teamID, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("granting rescue: %w", err)
	}
	if v.rescue != nil {
		v.rescue.timer.Stop()
	}

	rs := &rescue{granter: granter, expires: r.clock.Now().Add(d)}
	rs.timer = r.clock.AfterFunc(d, func() {
		r.serial.Do(func() { r.expireRescue(teamID, v, rs) })
	})
	v.rescue = rs

	r.logger.Info("rescue granted", "team", teamID, "vehicle", name, "granter", granter, "duration", d)
	return rs.expires, nil
}

// RescueActive reports whether a rescue override covers the vehicle type.
func (r *Registry) RescueActive(teamID int, name string) bool {
	v, err := r.vehicle(teamID, name)
	return err == nil && v.rescue != nil
}

// MarkRescuer records the player entering under an active override,
// replacing any previous rescuer. It reports whether an override is active.
func (r *Registry) MarkRescuer(teamID int, name, playerID string) bool {
	v, err := r.vehicle(teamID, name)
	if err != nil || v.rescue == nil {
		return false
	}
	v.rescue.rescuer = playerID
	return true
}

// CancelRescue ends an override without notifying anyone.
func (r *Registry) CancelRescue(teamID int, name string) bool {
	v, err := r.vehicle(teamID, name)
	if err != nil || v.rescue == nil {
		return false
	}
	v.rescue.timer.Stop()
	v.rescue = nil
	return true
}

func (r *Registry) expireRescue(teamID int, v *vehicle, rs *rescue) {
	t, ok := r.teams[teamID]
	if !ok || t.vehicles[v.name] != v || v.rescue != rs {
		r.logger.Debug("stale rescue timer ignored", "team", teamID, "vehicle", v.name)
		return
	}
	v.rescue = nil

	r.logger.Info("rescue expired", "team", teamID, "vehicle", v.name)
	if r.onRescueExpired != nil {
		r.onRescueExpired(RescueExpiry{
			TeamID:      teamID,
			Vehicle:     v.name,
			DisplayName: v.display,
			Granter:     rs.granter,
			Rescuer:     rs.rescuer,
		})
	}
}
