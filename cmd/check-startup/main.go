package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Amund211/warmstart/internal/adapters/startupconfig"
	"github.com/Amund211/warmstart/internal/services"
	"github.com/Amund211/warmstart/internal/startup"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("No startup configuration file provided")
	}

	path := os.Args[1]

	catalog := startup.NewCatalog()
	if err := services.RegisterAll(catalog); err != nil {
		log.Fatalf("Failed registering startup services: %v", err)
	}

	descriptors, err := startupconfig.NewFileStartupProvider(path, catalog).CurrentStartupDescriptors()
	if err != nil {
		log.Fatalf("Invalid startup configuration: %v", err)
	}

	if descriptors.Len() == 0 {
		fmt.Println("No startup services declared")
		return
	}

	for i, typeName := range descriptors.TypeNames() {
		fmt.Printf("%d. %s\n", i+1, typeName)
	}
}
