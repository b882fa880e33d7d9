package olx

import (
	"testing"

	"olx-price-pipeline/models"
)

// Detail-page attribute keys must come out exactly as the cleaning stage
// reads them: lower-cased and underscored, accents intact.
func TestNormalizeDetailKey(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Câmbio", models.DetailTransmission},
		{"Combustível", models.DetailFuel},
		{"Potência do motor", models.DetailPower},
		{"Direção", models.DetailSteering},
		{"Tipo de veículo", models.DetailVehicleType},
		{"Possui Kit GNV", models.DetailGNVKit},
		{"Final de placa", models.DetailPlateDigit},
		{"Quilometragem", models.DetailMileage},
		{"Marca", models.DetailBrand},
		{"Ano", models.DetailYear},
		{"  Portas  ", models.DetailDoors},
	}

	for _, tt := range tests {
		if got := normalizeDetailKey(tt.label); got != tt.want {
			t.Errorf("normalizeDetailKey(%q) = %q; want %q", tt.label, got, tt.want)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Trava elétrica", "trava_eletrica"},
		{"Ar condicionado", "ar_condicionado"},
		{"Câmbio", "cambio"},
		{"Direção hidráulica", "direcao_hidraulica"},
		{"Tração 4x4", "tracao_4x4"},
		{"  Som  ", "som"},
		{"Final de placa", "final_de_placa"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeKey(tt.label); got != tt.want {
			t.Errorf("normalizeKey(%q) = %q; want %q", tt.label, got, tt.want)
		}
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw              string
		city, state, zip string
	}{
		{"São Paulo, SP, 01310-100", "São Paulo", "SP", "01310-100"},
		{"Campinas, SP", "Campinas", "SP", ""},
		{"Belo Horizonte", "Belo Horizonte", "", ""},
		{"", "", "", ""},
	}

	for _, tt := range tests {
		city, state, zip := parseLocation(tt.raw)
		if city != tt.city || state != tt.state || zip != tt.zip {
			t.Errorf("parseLocation(%q) = (%q, %q, %q); want (%q, %q, %q)",
				tt.raw, city, state, zip, tt.city, tt.state, tt.zip)
		}
	}
}
