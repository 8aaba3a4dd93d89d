package scene_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/scene"
	"github.com/zero-day-ai/rsg/types"
)

// ExampleStore_GetTransformForNode builds a small kinematic chain and asks
// for the pose of its tip in the root frame.
func ExampleStore_GetTransformForNode() {
	ctx := context.Background()
	store := scene.New(scene.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	now := types.FromMillis(1000)
	base, err := store.AddTransformNode(ctx, id.Root, types.Attrs("name", "base"), types.Translation(1, 0, 0), now)
	if err != nil {
		log.Fatal(err)
	}
	tip, err := store.AddTransformNode(ctx, base, types.Attrs("name", "tip"), types.Translation(0, 0, 0.5), now)
	if err != nil {
		log.Fatal(err)
	}

	pose, err := store.GetTransformForNode(ctx, tip, id.Root, types.TimeStamp{})
	if err != nil {
		log.Fatal(err)
	}
	x, y, z := pose.TranslationPart()
	fmt.Printf("tip at (%.1f, %.1f, %.1f)\n", x, y, z)

	// Output: tip at (1.0, 0.0, 0.5)
}

// ExampleStore_GetNodes shows attribute filtering with a wildcard.
func ExampleStore_GetNodes() {
	ctx := context.Background()
	store := scene.New(scene.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	for _, name := range []string{"cup", "plate", "fork"} {
		if _, err := store.AddNode(ctx, id.Root, types.Attrs("name", name, "room", "kitchen")); err != nil {
			log.Fatal(err)
		}
	}

	fmt.Println(len(store.GetNodes(ctx, types.Attrs("room", "kitchen"))))
	fmt.Println(len(store.GetNodes(ctx, types.Attrs("name", types.Wildcard))))
	fmt.Println(len(store.GetNodes(ctx, types.Attrs("name", "knife"))))

	// Output:
	// 3
	// 3
	// 0
}
