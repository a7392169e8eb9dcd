package maps

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			key := args[0]
			if value, ok, err := namedMap.Get(ctx, key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, value=%s\n", key, ok, formatValue(value))
			}
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key (values are parsed as JSON, everything else is stored as a string)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}

			key := args[0]
			if old, ok, err := namedMap.PutWithExpiry(ctx, key, parseValue(args[1]), ttl); err != nil {
				return err
			} else if ok {
				fmt.Printf("put successfully, previous value=%s\n", formatValue(old))
			} else {
				fmt.Println("put successfully")
			}
			return nil
		},
	}
	putIfAbsentCmd = &cobra.Command{
		Use:   "put-if-absent [key] [value]",
		Short: "Sets the value for a key if the key is not already set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			key := args[0]
			if current, ok, err := namedMap.PutIfAbsent(ctx, key, parseValue(args[1])); err != nil {
				return err
			} else if ok {
				fmt.Printf("key=%s already set, value=%s\n", key, formatValue(current))
			} else {
				fmt.Println("put-if-absent successfully")
			}
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Removes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			key := args[0]
			if old, ok, err := namedMap.Remove(ctx, key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, removed=%v, value=%s\n", key, ok, formatValue(old))
			}
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			key := args[0]
			if found, err := namedMap.ContainsKey(ctx, key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%t\n", key, found)
			}
			return nil
		},
	}
	sizeCmd = &cobra.Command{
		Use:   "size",
		Short: "Prints the number of entries of the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			if size, err := namedMap.Size(ctx); err != nil {
				return err
			} else {
				fmt.Printf("map=%s, size=%d\n", namedMap.Name(), size)
			}
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all entries (emits a deleted event per entry)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			if err := namedMap.Clear(ctx); err != nil {
				return err
			}
			fmt.Println("clear successfully")
			return nil
		},
	}
	truncateCmd = &cobra.Command{
		Use:   "truncate",
		Short: "Removes all entries without emitting entry events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			if err := namedMap.Truncate(ctx); err != nil {
				return err
			}
			fmt.Println("truncate successfully")
			return nil
		},
	}
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "Destroys the map on the proxy and all its entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			if err := namedMap.Destroy(ctx); err != nil {
				return err
			}
			fmt.Println("destroy successfully")
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Lists all keys of the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := namedMap.Keys()
			if err != nil {
				return err
			}
			for key, err := range keys.All(cmd.Context()) {
				if err != nil {
					return err
				}
				fmt.Println(key)
			}
			return nil
		},
	}
	entriesCmd = &cobra.Command{
		Use:   "entries",
		Short: "Lists all entries of the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := namedMap.Entries()
			if err != nil {
				return err
			}
			for entry, err := range entries.All(cmd.Context()) {
				if err != nil {
					return err
				}
				fmt.Printf("%s=%s\n", entry.Key, formatValue(entry.Value))
			}
			return nil
		},
	}
)

func init() {
	putCmd.Flags().Duration("ttl", time.Duration(0), "Time to live of the entry (0 = the default expiry of the cache)")
}
