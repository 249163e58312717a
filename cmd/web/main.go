package main

import "salon_backend/internal/app"

func main() {
	app.Run()
}
