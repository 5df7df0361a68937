package vehicleclaims

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/squadwarden/warden/internal/util"
)

const (
	msgEnforcementEnabled  = "Automatic claim enforcement enabled."
	msgEnforcementDisabled = "Automatic claim enforcement disabled."
	msgRescueSquadOnly     = "The rescue command only works in squad chat."
	msgRescueLeaderOnly    = "The rescue command can only be used by the squad leader."
	msgRescueNothing       = "You don't have a vehicle to rescue."
	msgRescueEnter         = "Rescue mode:\n\nThis vehicle can temporarily be entered without claim."
	msgLockDisbanded       = "You were disbanded for violating the squad locking rule."
)

// Claim outcomes written to the journal.
const (
	outcomeClaimed   = "claimed"
	outcomeHeld      = "held"
	outcomeReplaced  = "replaced"
	outcomeRejected  = "rejected"
	outcomeAmbiguous = "ambiguous"
)

func msgClaimGranted(display string) string {
	return fmt.Sprintf("You have the claim for %s.", display)
}

func msgAmbiguous(squadName string) string {
	return fmt.Sprintf("Squad name %s claims multiple vehicles.\nBe more specific!", squadName)
}

func msgWrongVehicle(claimed, entered string) string {
	return fmt.Sprintf("Wrong vehicle!\n\nYou have claim for %s.\nThis is a %s.\nExit the vehicle immediately.", claimed, entered)
}

func msgClaimViolation(holders []int) string {
	text := "This vehicle must be claimed in your squad name.\n"
	if len(holders) > 0 {
		text = fmt.Sprintf("Squad %s has the claim for this vehicle.\n", util.JoinInts(holders, " & "))
	}
	return "Claim violation!\n\n" + text + "Exit the vehicle immediately."
}

func msgSecondWarning(seconds int) string {
	return fmt.Sprintf("Claim violation!\n\nExit the vehicle or be killed.\nYou have %d seconds.", seconds)
}

func msgEnforcementStatus(enabled bool, command string) string {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return fmt.Sprintf("Claim enforcement is %s.\n!%s enable\n!%s disable", state, command, command)
}

func msgRescueGranted(display string, minutes int) string {
	return fmt.Sprintf("Rescue mode:\n\n%s can be entered without claim for the next %d minutes.", display, minutes)
}

func msgRescueExpired(display string) string {
	return fmt.Sprintf("Rescue timer expired for %s.", display)
}

func msgNoVehicleMatch(name string) string {
	return fmt.Sprintf("No vehicle matches %q.", name)
}

func msgLockWarning(minSize, seconds int) string {
	return fmt.Sprintf("Squad locking violation!\n\nYou can't lock infantry squads with less than %d people.\nUnlock or be disbanded in %d seconds.", minSize, seconds)
}

func msgLockBroadcast(faction string, squadID int, name string) string {
	return fmt.Sprintf("%s squad %d %q was disbanded for violating the squad locking rule.", faction, squadID, name)
}

func newID() string {
	return uuid.NewString()
}
