package compat

import (
	"strings"
	"testing"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

func intPtr(v int) *int { return &v }

func baseParts() []*domainx.Product {
	return []*domainx.Product{
		{ID: "cpu_am5", Name: "Ryzen 7 7800X3D", Category: domainx.CategoryCPU,
			Specs: domainx.ProductSpecs{CPU: &domainx.CPUSpec{Socket: "AM5", TDPWatts: 120}}},
		{ID: "mb_b650", Name: "B650 Tomahawk", Category: domainx.CategoryMotherboard,
			Specs: domainx.ProductSpecs{Motherboard: &domainx.MotherboardSpec{
				Socket: "AM5", FormFactor: "ATX", MemoryType: "DDR5", MaxMemoryMhz: 6000, MaxMemorySlots: 4, SataPorts: intPtr(1),
			}}},
		{ID: "ram_ddr5_6000", Name: "DDR5-6000 32GB", Category: domainx.CategoryMemory,
			Specs: domainx.ProductSpecs{Memory: &domainx.MemorySpec{Type: "DDR5", SpeedMhz: 6000, Modules: 2}}},
		{ID: "case_mid", Name: "Mid Tower", Category: domainx.CategoryCase,
			Specs: domainx.ProductSpecs{Case: &domainx.CaseSpec{
				SupportedFormFactors: []string{"ATX", "mATX"}, GPUMaxLengthMm: 330, CoolerMaxHeightMm: 165,
			}}},
		{ID: "psu_850", Name: "850W Gold", Category: domainx.CategoryPSU,
			Specs: domainx.ProductSpecs{PSU: &domainx.PSUSpec{Wattage: 850}}},
		{ID: "gpu_4080", Name: "RTX 4080", Category: domainx.CategoryGPU,
			Specs: domainx.ProductSpecs{GPU: &domainx.GPUSpec{LengthMm: 304, RecommendedPsuWatts: 750}}},
	}
}

func ids(ps []*domainx.Product) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestCheckCompatibleBuild(t *testing.T) {
	t.Parallel()

	prods := baseParts()
	res := Check(ids(prods), prods)
	if !res.IsCompatible {
		t.Fatalf("expected compatible build, errors=%v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestCheckMissingProducts(t *testing.T) {
	t.Parallel()

	prods := baseParts()
	res := Check([]string{"cpu_am5", "ghost_1", "ghost_2"}, prods)
	if res.IsCompatible {
		t.Fatal("missing products must be incompatible")
	}
	if len(res.Errors) != 1 || res.Errors[0] != "Products not found: ghost_1, ghost_2" {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
}

func TestCheckReportsEachRule(t *testing.T) {
	t.Parallel()

	prods := append(baseParts(),
		&domainx.Product{ID: "cpu_lga", Name: "Core i9", Category: domainx.CategoryCPU,
			Specs: domainx.ProductSpecs{CPU: &domainx.CPUSpec{Socket: "LGA1700"}}},
		&domainx.Product{ID: "ram_ddr4", Name: "DDR4-3200", Category: domainx.CategoryMemory,
			Specs: domainx.ProductSpecs{Memory: &domainx.MemorySpec{Type: "DDR4", SpeedMhz: 3200, Modules: 2}}},
		&domainx.Product{ID: "ram_fast", Name: "DDR5-7200", Category: domainx.CategoryMemory,
			Specs: domainx.ProductSpecs{Memory: &domainx.MemorySpec{Type: "DDR5", SpeedMhz: 7200, Modules: 2}}},
		&domainx.Product{ID: "ssd_a", Name: "SATA SSD A", Category: domainx.CategoryStorage,
			Specs: domainx.ProductSpecs{Storage: &domainx.StorageSpec{Interface: "SATA"}}},
		&domainx.Product{ID: "ssd_b", Name: "SATA SSD B", Category: domainx.CategoryStorage,
			Specs: domainx.ProductSpecs{Storage: &domainx.StorageSpec{Interface: "SATA"}}},
		&domainx.Product{ID: "gpu_long", Name: "RTX 4090", Category: domainx.CategoryGPU,
			Specs: domainx.ProductSpecs{GPU: &domainx.GPUSpec{LengthMm: 360, RecommendedPsuWatts: 1000}}},
		&domainx.Product{ID: "cool_tall", Name: "Tower Cooler", Category: domainx.CategoryCooling,
			Specs: domainx.ProductSpecs{Cooling: &domainx.CoolingSpec{HeightMm: 170}}},
	)

	res := Check(ids(prods), prods)
	if res.IsCompatible {
		t.Fatal("expected incompatible build")
	}

	wantErrors := []string{
		"Build contains multiple CPUs (2)",
		"Memory type DDR4 not supported by motherboard (supports DDR5)",
		"Total memory modules (6) exceed motherboard slots (4)",
		"SATA storage devices (2) exceed motherboard SATA ports (1)",
		"GPU RTX 4090 length (360mm) exceeds case maximum (330mm)",
		"CPU cooler Tower Cooler height (170mm) exceeds case maximum (165mm)",
		"PSU wattage (850W) insufficient for GPU requirements (1000W recommended)",
	}
	joined := strings.Join(res.Errors, "\n")
	for _, want := range wantErrors {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing error %q in %v", want, res.Errors)
		}
	}
	// cpu_am5 sorts before cpu_lga, so the primary CPU still matches the board.
	if strings.Contains(joined, "CPU socket") {
		t.Fatalf("socket error must use the lowest cpu id: %v", res.Errors)
	}

	warnings := strings.Join(res.Warnings, "\n")
	if !strings.Contains(warnings, "Memory will be downclocked from 7200MHz to motherboard maximum of 6000MHz") {
		t.Fatalf("missing downclock warning: %v", res.Warnings)
	}
	if !strings.Contains(warnings, "Mismatched memory frequencies detected (3200MHz, 6000MHz, 7200MHz) - all memory will run at slowest speed (3200MHz)") {
		t.Fatalf("missing mismatch warning: %v", res.Warnings)
	}
}

func TestCheckNoPSUWarning(t *testing.T) {
	t.Parallel()

	prods := baseParts()[:2]
	res := Check(ids(prods), prods)
	if !res.IsCompatible {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "No PSU selected" {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestCheckDefaultCPUTDP(t *testing.T) {
	t.Parallel()

	prods := []*domainx.Product{
		{ID: "cpu_x", Category: domainx.CategoryCPU, Specs: domainx.ProductSpecs{CPU: &domainx.CPUSpec{Socket: "AM4"}}},
		{ID: "psu_tiny", Category: domainx.CategoryPSU, Specs: domainx.ProductSpecs{PSU: &domainx.PSUSpec{Wattage: 60}}},
	}
	res := Check(ids(prods), prods)
	if res.IsCompatible {
		t.Fatal("60W PSU must not cover default 65W TDP")
	}
	if res.Errors[0] != "PSU wattage (60W) insufficient for CPU TDP (65W)" {
		t.Fatalf("unexpected error: %v", res.Errors)
	}
}
