package entity

import "testing"

func TestType_RoundTripByte(t *testing.T) {
	t.Parallel()
	for _, et := range Types() {
		got, ok := TypeFromByte(et.Byte())
		if !ok {
			t.Fatalf("TypeFromByte(%d) rechazó un tipo válido", et.Byte())
		}
		if got != et {
			t.Fatalf("round trip: got %v want %v", got, et)
		}
	}
}

func TestTypeFromByte_RejectsUnknown(t *testing.T) {
	t.Parallel()
	if _, ok := TypeFromByte(250); ok {
		t.Fatal("esperaba rechazo para byte desconocido")
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()
	et, err := ParseType("trajectory")
	if err != nil {
		t.Fatalf("ParseType: %v", err)
	}
	if et != TypeTrajectory {
		t.Fatalf("got %v", et)
	}
	if _, err := ParseType("no-existe"); err == nil {
		t.Fatal("esperaba error para nombre desconocido")
	}
}

func TestType_StringAndValid(t *testing.T) {
	t.Parallel()
	if TypeNote.String() != "note" {
		t.Fatalf("String: got %q", TypeNote.String())
	}
	if Type(200).Valid() {
		t.Fatal("Valid aceptó un tipo fuera de rango")
	}
	var zero Trajectory
	if zero.EntityType() != TypeTrajectory {
		t.Fatal("el zero value debe responder su tipo")
	}
}
