package security

import "testing"

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		pw    string
		valid bool
	}{
		{"short1!A", false},
		{"alllowercase1!", false},
		{"ALLUPPERCASE1!", false},
		{"NoDigitsHere!!", false},
		{"NoSymbols12345", false},
		{"Valid-Passw0rd", true},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.pw)
		if (err == nil) != tc.valid {
			t.Errorf("ValidatePassword(%q) = %v, want valid=%v", tc.pw, err, tc.valid)
		}
	}
}

func TestGenerateRandomPassword_SatisfiesPolicy(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		pw, err := GenerateRandomPassword()
		if err != nil {
			t.Fatalf("GenerateRandomPassword: %v", err)
		}
		if len(pw) != generatedPasswordLength {
			t.Fatalf("length = %d", len(pw))
		}
		if err := ValidatePassword(pw); err != nil {
			t.Fatalf("generated %q fails policy: %v", pw, err)
		}
		seen[pw] = true
	}
	if len(seen) < 50 {
		t.Error("generated passwords should not repeat")
	}
}

func TestDeviceID(t *testing.T) {
	a := DeviceID("Mozilla/5.0", "10.0.0.1")
	if a != DeviceID("Mozilla/5.0", "10.0.0.1") {
		t.Error("DeviceID should be deterministic")
	}
	if a == DeviceID("Mozilla/5.0", "10.0.0.2") {
		t.Error("different address should give a different device id")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
}
