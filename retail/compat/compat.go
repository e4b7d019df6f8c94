package compat

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	domainx "github.com/tanpawarit/corecraft-support/retail/domain"
)

const defaultCPUTDPWatts = 65

type Result struct {
	IsCompatible bool     `json:"is_compatible"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
}

type parts struct {
	cpus, motherboards, memory, psus, gpus, cases, storage, cooling []*domainx.Product
}

// Check validates a set of components against each other. Missing ids are reported on
// their own and short-circuit every other rule. Repeated ids count as separate parts.
// When a category appears more than once the lowest id is treated as the primary part.
func Check(requested []string, found []*domainx.Product) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}

	byID := make(map[string]*domainx.Product, len(found))
	for _, p := range found {
		if p != nil {
			byID[p.ID] = p
		}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		res.Errors = append(res.Errors, "Products not found: "+strings.Join(missing, ", "))
		return res
	}

	p := group(requested, byID)

	if n := len(p.cpus); n > 1 {
		res.Errors = append(res.Errors, fmt.Sprintf("Build contains multiple CPUs (%d) - a build only requires one CPU", n))
	}
	if n := len(p.motherboards); n > 1 {
		res.Errors = append(res.Errors, fmt.Sprintf("Build contains multiple motherboards (%d) - a build only requires one motherboard", n))
	}

	checkSocket(&res, p)
	checkFormFactor(&res, p)
	checkMemory(&res, p)
	checkMemorySlots(&res, p)
	checkSata(&res, p)
	checkClearance(&res, p)
	checkPower(&res, p)

	res.IsCompatible = len(res.Errors) == 0
	return res
}

func group(requested []string, byID map[string]*domainx.Product) parts {
	var p parts
	for _, id := range requested {
		prod := byID[id]
		switch prod.Category {
		case domainx.CategoryCPU:
			p.cpus = append(p.cpus, prod)
		case domainx.CategoryMotherboard:
			p.motherboards = append(p.motherboards, prod)
		case domainx.CategoryMemory:
			p.memory = append(p.memory, prod)
		case domainx.CategoryPSU:
			p.psus = append(p.psus, prod)
		case domainx.CategoryGPU:
			p.gpus = append(p.gpus, prod)
		case domainx.CategoryCase:
			p.cases = append(p.cases, prod)
		case domainx.CategoryStorage:
			p.storage = append(p.storage, prod)
		case domainx.CategoryCooling:
			p.cooling = append(p.cooling, prod)
		}
	}
	for _, list := range [][]*domainx.Product{p.cpus, p.motherboards, p.memory, p.psus, p.gpus, p.cases, p.storage, p.cooling} {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return p
}

func checkSocket(res *Result, p parts) {
	if len(p.cpus) == 0 || len(p.motherboards) == 0 {
		return
	}
	cpu, mobo := p.cpus[0].Specs.CPU, p.motherboards[0].Specs.Motherboard
	if cpu == nil || mobo == nil || cpu.Socket == "" || mobo.Socket == "" {
		return
	}
	if cpu.Socket != mobo.Socket {
		res.Errors = append(res.Errors, fmt.Sprintf("CPU socket %s incompatible with motherboard socket %s", cpu.Socket, mobo.Socket))
	}
}

func checkFormFactor(res *Result, p parts) {
	if len(p.motherboards) == 0 || len(p.cases) == 0 {
		return
	}
	mobo, c := p.motherboards[0].Specs.Motherboard, p.cases[0].Specs.Case
	if mobo == nil || c == nil || mobo.FormFactor == "" || len(c.SupportedFormFactors) == 0 {
		return
	}
	for _, ff := range c.SupportedFormFactors {
		if ff == mobo.FormFactor {
			return
		}
	}
	res.Errors = append(res.Errors, fmt.Sprintf("Motherboard form factor %s not supported by case (supports: %s)",
		mobo.FormFactor, strings.Join(c.SupportedFormFactors, ", ")))
}

func checkMemory(res *Result, p parts) {
	if len(p.memory) == 0 || len(p.motherboards) == 0 {
		return
	}
	mobo := p.motherboards[0].Specs.Motherboard
	if mobo == nil {
		mobo = &domainx.MotherboardSpec{}
	}

	var speeds []int
	for _, ram := range p.memory {
		spec := ram.Specs.Memory
		if spec == nil {
			continue
		}
		if spec.Type != "" && mobo.MemoryType != "" && spec.Type != mobo.MemoryType {
			res.Errors = append(res.Errors, fmt.Sprintf("Memory type %s not supported by motherboard (supports %s)", spec.Type, mobo.MemoryType))
		}
		if spec.SpeedMhz > 0 {
			speeds = append(speeds, spec.SpeedMhz)
		}
	}
	if len(speeds) == 0 || mobo.MaxMemoryMhz == 0 {
		return
	}

	lo, hi := speeds[0], speeds[0]
	for _, s := range speeds[1:] {
		lo = min(lo, s)
		hi = max(hi, s)
	}
	if hi > mobo.MaxMemoryMhz {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Memory will be downclocked from %dMHz to motherboard maximum of %dMHz", hi, mobo.MaxMemoryMhz))
	}
	if len(speeds) > 1 && lo != hi {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Mismatched memory frequencies detected (%s) - all memory will run at slowest speed (%dMHz)",
			uniqueMHz(speeds), lo))
	}
}

func uniqueMHz(speeds []int) string {
	set := make(map[int]struct{}, len(speeds))
	uniq := make([]int, 0, len(speeds))
	for _, s := range speeds {
		if _, ok := set[s]; ok {
			continue
		}
		set[s] = struct{}{}
		uniq = append(uniq, s)
	}
	sort.Ints(uniq)
	labels := make([]string, len(uniq))
	for i, s := range uniq {
		labels[i] = strconv.Itoa(s) + "MHz"
	}
	return strings.Join(labels, ", ")
}

func checkMemorySlots(res *Result, p parts) {
	if len(p.memory) == 0 || len(p.motherboards) == 0 {
		return
	}
	mobo := p.motherboards[0].Specs.Motherboard
	if mobo == nil || mobo.MaxMemorySlots == 0 {
		return
	}
	modules := 0
	for _, ram := range p.memory {
		if ram.Specs.Memory != nil && ram.Specs.Memory.Modules > 0 {
			modules += ram.Specs.Memory.Modules
		} else {
			modules++
		}
	}
	if modules > mobo.MaxMemorySlots {
		res.Errors = append(res.Errors, fmt.Sprintf("Total memory modules (%d) exceed motherboard slots (%d)", modules, mobo.MaxMemorySlots))
	}
}

func checkSata(res *Result, p parts) {
	if len(p.storage) == 0 || len(p.motherboards) == 0 {
		return
	}
	mobo := p.motherboards[0].Specs.Motherboard
	if mobo == nil || mobo.SataPorts == nil {
		return
	}
	devices := 0
	for _, s := range p.storage {
		if s.Specs.Storage != nil && s.Specs.Storage.Interface == "SATA" {
			devices++
		}
	}
	if devices > *mobo.SataPorts {
		res.Errors = append(res.Errors, fmt.Sprintf("SATA storage devices (%d) exceed motherboard SATA ports (%d)", devices, *mobo.SataPorts))
	}
}

func checkClearance(res *Result, p parts) {
	if len(p.cases) == 0 {
		return
	}
	c := p.cases[0].Specs.Case
	if c == nil {
		return
	}
	if c.GPUMaxLengthMm > 0 {
		for _, gpu := range p.gpus {
			if spec := gpu.Specs.GPU; spec != nil && spec.LengthMm > c.GPUMaxLengthMm {
				res.Errors = append(res.Errors, fmt.Sprintf("GPU %s length (%dmm) exceeds case maximum (%dmm)", gpu.Name, spec.LengthMm, c.GPUMaxLengthMm))
			}
		}
	}
	if c.CoolerMaxHeightMm > 0 {
		for _, cooler := range p.cooling {
			if spec := cooler.Specs.Cooling; spec != nil && spec.HeightMm > c.CoolerMaxHeightMm {
				res.Errors = append(res.Errors, fmt.Sprintf("CPU cooler %s height (%dmm) exceeds case maximum (%dmm)", cooler.Name, spec.HeightMm, c.CoolerMaxHeightMm))
			}
		}
	}
}

func checkPower(res *Result, p parts) {
	if len(p.psus) == 0 {
		if len(p.cpus) > 0 || len(p.gpus) > 0 {
			res.Warnings = append(res.Warnings, "No PSU selected")
		}
		return
	}

	wattage := 0
	if spec := p.psus[0].Specs.PSU; spec != nil {
		wattage = spec.Wattage
	}
	for _, cpu := range p.cpus {
		tdp := defaultCPUTDPWatts
		if spec := cpu.Specs.CPU; spec != nil && spec.TDPWatts > 0 {
			tdp = spec.TDPWatts
		}
		if wattage < tdp {
			res.Errors = append(res.Errors, fmt.Sprintf("PSU wattage (%dW) insufficient for CPU TDP (%dW)", wattage, tdp))
		}
	}
	for _, gpu := range p.gpus {
		spec := gpu.Specs.GPU
		if spec == nil || spec.RecommendedPsuWatts <= 0 {
			continue
		}
		if wattage < spec.RecommendedPsuWatts {
			res.Errors = append(res.Errors, fmt.Sprintf("PSU wattage (%dW) insufficient for GPU requirements (%dW recommended)", wattage, spec.RecommendedPsuWatts))
		}
	}
}
