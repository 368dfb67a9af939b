package main

import (
	"fmt"

	"github.com/sonoasy/ssdsim"
	"github.com/sonoasy/ssdsim/internal/config"
	"github.com/sonoasy/ssdsim/internal/host"
)

func loadConfigFile(path string) (ssdsim.Config, error) {
	return config.Load(path)
}

// testApp1 writes one value to the whole device and reads it back.
func testApp1(h *host.Host) {
	const value = "0xABCDFFFF"
	if err := h.FullWrite(value); err != nil {
		fmt.Println("testapp1: fullwrite failed:", err)
		return
	}
	fmt.Println("full write done:", value)
	fmt.Println("verifying full read...")
	expected, _ := host.ParseHexWord(value)
	pass := true
	for lba := 0; lba < h.LogicalPages(); lba++ {
		if got := h.Read(lba); got != expected {
			fmt.Printf("  LBA %d: FAIL (expected %s, got %s)\n", lba, value, host.FormatHexWord(got))
			pass = false
		}
	}
	if pass {
		fmt.Println("testapp1: PASS")
	}
}

// testApp2 ages LBAs 0..5 with 30 rewrites, overwrites once, verifies.
func testApp2(h *host.Host) {
	const (
		agingValue     = "0xAAAABBBB"
		overwriteValue = "0x12345678"
		rounds         = 6
	)

	fmt.Println("[testapp2] aging write (LBA 0~5, 30 rounds)")
	for i := 0; i < 30; i++ {
		for idx := 0; idx < rounds; idx++ {
			if err := h.Write(idx, agingValue); err != nil {
				fmt.Println("testapp2: write failed:", err)
				return
			}
		}
		if (i+1)%10 == 0 {
			fmt.Printf("  ... %d rounds done\n", i+1)
		}
	}
	fmt.Println("aging write done:", agingValue)

	fmt.Println("\n=== statistics after aging ===")
	h.PrintStatistics()

	fmt.Println("\n[testapp2] overwrite")
	for idx := 0; idx < rounds; idx++ {
		if err := h.Write(idx, overwriteValue); err != nil {
			fmt.Println("testapp2: overwrite failed:", err)
			return
		}
	}
	fmt.Println("overwrite done:", overwriteValue)

	fmt.Println("\nverifying...")
	expected, _ := host.ParseHexWord(overwriteValue)
	for idx := 0; idx < rounds; idx++ {
		if got := h.Read(idx); got == expected {
			fmt.Printf("  LBA %d: PASS (%s)\n", idx, host.FormatHexWord(got))
		} else {
			fmt.Printf("  LBA %d: FAIL (expected %s, got %s)\n", idx, overwriteValue, host.FormatHexWord(got))
		}
	}

	fmt.Println("\n=== final statistics ===")
	h.PrintStatistics()
}

// testApp3 exercises garbage collection: initial writes, ten overwrite
// rounds to pile up invalid pages, then an integrity check.
func testApp3(h *host.Host) {
	fmt.Println("[testapp3] garbage collection test")

	fmt.Println("\nstep 1: initial writes to LBA 0~50")
	for i := 0; i <= 50; i++ {
		if err := h.Write(i, host.FormatHexWord(uint32(i*100))); err != nil {
			fmt.Println("testapp3: write failed:", err)
			return
		}
	}
	fmt.Println("\n=== statistics after initial writes ===")
	h.PrintStatistics()

	fmt.Println("\nstep 2: 10 overwrite rounds on LBA 0~50")
	for round := 0; round < 10; round++ {
		for i := 0; i <= 50; i++ {
			if err := h.Write(i, host.FormatHexWord(uint32((round+1)*1000+i))); err != nil {
				fmt.Println("testapp3: overwrite failed:", err)
				return
			}
		}
		fmt.Printf("  ... round %d done\n", round+1)
	}
	fmt.Println("\n=== statistics after overwrite rounds ===")
	h.PrintStatistics()

	fmt.Println("\nstep 3: integrity check (LBA 0~10)")
	for i := 0; i <= 10; i++ {
		expected := uint32(10*1000 + i)
		if got := h.Read(i); got == expected {
			fmt.Printf("  LBA %d: PASS\n", i)
		} else {
			fmt.Printf("  LBA %d: FAIL (expected %s, got %s)\n",
				i, host.FormatHexWord(expected), host.FormatHexWord(got))
		}
	}
}
