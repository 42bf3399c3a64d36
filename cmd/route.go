package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dynroute/dynroute/netsim"
)

var (
	routeNetwork string // Network file (.geojson, .osm, .pbf)
	routeFrom    string // Origin edge
	routeTo      string // Destination edge
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Print the free-flow shortest path between two edges of a network file",
	Run: func(cmd *cobra.Command, args []string) {
		route, cost, err := findRoute(routeNetwork, routeFrom, routeTo)
		if err != nil {
			logrus.Fatalf("Routing failed: %v", err)
		}
		logrus.Infof("Travel time %.1fs over %d edges", cost, len(route))
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(route, " "))
	},
}

// findRoute loads the network at path and routes from one edge to another.
func findRoute(path, from, to string) ([]string, float64, error) {
	net, err := netsim.LoadNetworkFile(path)
	if err != nil {
		return nil, 0, err
	}
	router, err := netsim.NewRouter(net, netsim.FreeFlowCost)
	if err != nil {
		return nil, 0, err
	}
	route, cost, err := router.Route(from, to)
	if err != nil {
		return nil, 0, err
	}
	if len(route) == 0 {
		return nil, 0, fmt.Errorf("no route from %s to %s", from, to)
	}
	return route, cost, nil
}

func init() {
	routeCmd.Flags().StringVar(&routeNetwork, "network", "", "Network file (.geojson, .osm, .pbf)")
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "Origin edge")
	routeCmd.Flags().StringVar(&routeTo, "to", "", "Destination edge")
	_ = routeCmd.MarkFlagRequired("network")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(routeCmd)
}
